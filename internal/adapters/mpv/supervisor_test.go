package mpv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/signage-agent/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

// Le binaire de test se relance lui-même comme faux lecteur.
const fakeModeEnv = "SIGNAGE_FAKE_PLAYER"

func TestMain(m *testing.M) {
	switch os.Getenv(fakeModeEnv) {
	case "":
		os.Exit(m.Run())
	case "exit":
		recordInvocation()
		os.Exit(0)
	default:
		recordInvocation()
		time.Sleep(time.Minute)
		os.Exit(0)
	}
}

func recordInvocation() {
	out := os.Getenv("SIGNAGE_FAKE_PLAYER_OUT")
	if out == "" {
		return
	}
	line := os.Getenv("DISPLAY") + "|" + strings.Join(os.Args[1:], " ") + "\n"
	f, err := os.OpenFile(out, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(line)
}

func fakeSupervisor(t *testing.T, mode string, bus ports.EventBus) (*Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "invocations")
	s := New(Options{
		Binary:               os.Args[0],
		Manifest:             filepath.Join(dir, "playlist.txt"),
		Socket:               filepath.Join(dir, "mpvsocket"),
		ImageDisplayDuration: 7,
		Env: map[string]string{
			"DISPLAY":                 ":0",
			fakeModeEnv:               mode,
			"SIGNAGE_FAKE_PLAYER_OUT": out,
		},
		StopTimeout: 5 * time.Second,
	}, bus, zerolog.Nop())
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s, out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestSupervisor_StartStopIdempotent(t *testing.T) {
	bus := memorybus.New()
	events, cancel := bus.Subscribe()
	defer cancel()
	s, out := fakeSupervisor(t, "sleep", bus)
	ctx := context.Background()

	if s.State() != domain.PlayerStopped {
		t.Fatalf("expected stopped, got %s", s.State())
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != domain.PlayerRunning || s.PID() == 0 {
		t.Fatalf("expected running with pid, got %s pid=%d", s.State(), s.PID())
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if evt := <-events; evt.Topic != ports.TopicPlayerStarted {
		t.Fatalf("unexpected event %s", evt.Topic)
	}

	waitFor(t, func() bool { fi, err := os.Stat(out); return err == nil && fi.Size() > 0 })

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.State() != domain.PlayerKilled {
		t.Fatalf("expected killed, got %s", s.State())
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	b, _ := os.ReadFile(out)
	line := strings.TrimSpace(string(b))
	if !strings.HasPrefix(line, ":0|--loop-playlist=inf --volume=-1 --no-terminal --fullscreen --input-ipc-server=") {
		t.Fatalf("unexpected invocation %q", line)
	}
	if !strings.Contains(line, "--image-display-duration=7 --playlist=") {
		t.Fatalf("missing display duration or playlist: %q", line)
	}
	if os.Getenv(fakeModeEnv) != "" {
		t.Fatalf("player env leaked into agent environment")
	}
}

func TestSupervisor_EnsureRunningRespawnsAfterExit(t *testing.T) {
	bus := memorybus.New()
	events, cancel := bus.Subscribe()
	defer cancel()
	s, _ := fakeSupervisor(t, "exit", bus)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return s.State() == domain.PlayerExited })

	respawned, err := s.EnsureRunning(ctx)
	if err != nil || !respawned {
		t.Fatalf("expected respawn, got %v %v", respawned, err)
	}

	var topics []string
	for len(topics) < 3 {
		select {
		case evt := <-events:
			topics = append(topics, evt.Topic)
		case <-time.After(5 * time.Second):
			t.Fatalf("missing events, got %v", topics)
		}
	}
	want := []string{ports.TopicPlayerStarted, ports.TopicPlayerExited, ports.TopicPlayerStarted}
	for i := range want {
		if topics[i] != want[i] {
			t.Fatalf("unexpected event order %v", topics)
		}
	}
}

func TestSupervisor_EnsureRunningNoopWhenAlive(t *testing.T) {
	s, _ := fakeSupervisor(t, "sleep", nil)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pid := s.PID()
	respawned, err := s.EnsureRunning(ctx)
	if err != nil || respawned {
		t.Fatalf("expected no respawn, got %v %v", respawned, err)
	}
	if s.PID() != pid {
		t.Fatalf("pid changed without respawn")
	}
}

func TestSupervisor_ReloadReplacesProcess(t *testing.T) {
	s, _ := fakeSupervisor(t, "sleep", nil)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before := s.PID()
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if s.State() != domain.PlayerRunning || s.PID() == before {
		t.Fatalf("expected a new running process, state=%s pid=%d", s.State(), s.PID())
	}
}

func TestSupervisor_SpawnFailureReturnsToStopped(t *testing.T) {
	s := New(Options{Binary: filepath.Join(t.TempDir(), "no-such-player")}, nil, zerolog.Nop())
	err := s.Start(context.Background())
	if !errors.Is(err, domain.ErrSpawn) {
		t.Fatalf("expected spawn error, got %v", err)
	}
	if s.State() != domain.PlayerStopped {
		t.Fatalf("expected stopped after failed spawn, got %s", s.State())
	}
	if _, err := s.EnsureRunning(context.Background()); !domain.IsSpawn(err) {
		t.Fatalf("expected spawn error on retry, got %v", err)
	}
}

func TestEnviron_OverridesWithoutDuplicates(t *testing.T) {
	t.Setenv("DISPLAY", ":9")
	env := Options{Env: map[string]string{"DISPLAY": ":0"}}.environ()
	n := 0
	for _, kv := range env {
		if strings.HasPrefix(kv, "DISPLAY=") {
			n++
			if kv != "DISPLAY=:0" {
				t.Fatalf("unexpected DISPLAY %q", kv)
			}
		}
	}
	if n != 1 || os.Getenv("DISPLAY") != ":9" {
		t.Fatalf("expected single override and untouched agent env, n=%d", n)
	}
}
