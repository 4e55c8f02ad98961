package app

import (
	"sync"
	"time"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
)

// Status est l'instantané publié par la boucle pour l'API locale.
type Status struct {
	StartedAt          time.Time  `json:"startedAt"`
	LastTickAt         *time.Time `json:"lastTickAt,omitempty"`
	Ticks              int64      `json:"ticks"`
	UpdateSource       string     `json:"updateSource,omitempty"`
	LastError          string     `json:"lastError,omitempty"`
	PollIntervalSec    float64    `json:"pollIntervalSeconds"`
	CurrentPlaylist    string     `json:"currentPlaylist,omitempty"`
	FallbackPlaylist   string     `json:"fallbackPlaylist,omitempty"`
	NextPlaylist       string     `json:"nextPlaylist,omitempty"`
	Videos             int        `json:"videos"`
	LastUpdate         *time.Time `json:"lastUpdate,omitempty"`
	ActiveScheduleEnds *time.Time `json:"activeScheduleEnds,omitempty"`
	NextScheduleStarts *time.Time `json:"nextScheduleStarts,omitempty"`
	PlayerState        string     `json:"playerState"`
	PlayerPID          int        `json:"playerPid,omitempty"`
	PlayerRespawns     int        `json:"playerRespawns"`

	// Alimentés par StatusUpdater depuis le bus.
	Syncs        int64      `json:"syncs"`
	SyncFailures int64      `json:"syncFailures"`
	LastSync     *SyncBrief `json:"lastSync,omitempty"`
}

type SyncBrief struct {
	At         time.Time `json:"at"`
	Source     string    `json:"source"`
	PlaylistID string    `json:"playlistId,omitempty"`
	Succeeded  bool      `json:"succeeded"`
	Videos     int       `json:"videos"`
	ErrorKind  string    `json:"errorKind,omitempty"`
}

type StatusTracker struct {
	mu sync.RWMutex
	s  Status
}

func NewStatusTracker(now time.Time) *StatusTracker {
	return &StatusTracker{s: Status{StartedAt: now, PlayerState: string(domain.PlayerStopped)}}
}

func (t *StatusTracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s
}

func (t *StatusTracker) Update(fn func(*Status)) {
	t.mu.Lock()
	fn(&t.s)
	t.mu.Unlock()
}

// applyState recopie les champs issus de l'état de synchronisation.
func (s *Status) applyState(st domain.SyncState) {
	s.CurrentPlaylist = domain.PlaylistString(st.CurrentPlaylist)
	s.FallbackPlaylist = domain.PlaylistString(st.FallbackPlaylistID)
	s.NextPlaylist = domain.PlaylistString(st.NextPlaylistID)
	s.Videos = len(st.Videos)
	s.LastUpdate = st.LastUpdate
	s.ActiveScheduleEnds = st.ActiveScheduleEnds
	s.NextScheduleStarts = st.NextScheduleStarts
}
