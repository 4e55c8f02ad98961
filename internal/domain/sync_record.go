package domain

import "time"

type SyncSource string

const (
	SourceSchedule SyncSource = "schedule"
	SourceLegacy   SyncSource = "legacy"
)

type SyncOutcome string

const (
	SyncSucceeded SyncOutcome = "succeeded"
	SyncFailed    SyncOutcome = "failed"
)

// SyncRecord est une entrée du journal des synchronisations (diagnostic uniquement).
type SyncRecord struct {
	ID         string
	Source     SyncSource
	PlaylistID string
	Outcome    SyncOutcome
	VideoCount int
	ErrorKind  string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}
