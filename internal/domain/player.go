package domain

type PlayerState string

const (
	PlayerStopped  PlayerState = "stopped"
	PlayerStarting PlayerState = "starting"
	PlayerRunning  PlayerState = "running"
	PlayerExited   PlayerState = "exited"
	PlayerKilled   PlayerState = "killed"
)

// CanStart: seuls stopped/exited/killed autorisent un (re)lancement.
func (s PlayerState) CanStart() bool {
	return s == PlayerStopped || s == PlayerExited || s == PlayerKilled
}
