package mpv

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	Binary               string
	Manifest             string
	Socket               string
	ImageDisplayDuration int
	// Env s'ajoute à l'environnement du processus agent (DISPLAY=:0 par défaut).
	Env         map[string]string
	StopTimeout time.Duration
}

func (o Options) args() []string {
	dur := o.ImageDisplayDuration
	if dur <= 0 {
		dur = 10
	}
	args := []string{
		"--loop-playlist=inf",
		"--volume=-1",
		"--no-terminal",
		"--fullscreen",
	}
	if o.Socket != "" {
		args = append(args, "--input-ipc-server="+o.Socket)
	}
	return append(args,
		"--image-display-duration="+strconv.Itoa(dur),
		"--playlist="+o.Manifest,
	)
}

// environ fusionne l'environnement courant et o.Env, sans toucher à celui de l'agent.
func (o Options) environ() []string {
	base := os.Environ()
	if len(o.Env) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(o.Env))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, overridden := o.Env[k]; overridden {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range o.Env {
		out = append(out, k+"="+v)
	}
	return out
}
