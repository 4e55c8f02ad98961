package buildinfo

import "runtime"

// Injectées à la compilation :
//
//	-X github.com/Guilhem-Bonnet/signage-agent/internal/buildinfo.Version=v0.3.0
//	-X github.com/Guilhem-Bonnet/signage-agent/internal/buildinfo.Commit=abcdef
//	-X github.com/Guilhem-Bonnet/signage-agent/internal/buildinfo.Date=2026-10-01
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"goVersion"`
}

func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}
}

// UserAgent est envoyé au serveur de signage sur chaque requête.
func UserAgent() string {
	return "signage-agent/" + Version
}
