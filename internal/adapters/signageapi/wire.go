package signageapi

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
)

var errEmptyKey = errors.New("empty key in response")

// Les ids et dates arrivent en chaînes; une valeur illisible vaut absence.
type scheduleResponse struct {
	ActivePlaylistID     *string      `json:"active_playlist_id"`
	FallbackPlaylistID   *string      `json:"fallback_playlist_id"`
	ScheduleEndsAt       *string      `json:"schedule_ends_at"`
	NextScheduleStartsAt *string      `json:"next_schedule_starts_at"`
	NextPlaylistID       *string      `json:"next_playlist_id"`
	UpdateFlags          *updateFlags `json:"update_flags"`
}

type updateFlags struct {
	ContentUpdateNeeded  bool `json:"content_update_needed"`
	PlaylistUpdateNeeded bool `json:"playlist_update_needed"`
	ScheduleUpdateNeeded bool `json:"schedule_update_needed"`
}

type syncResponse struct {
	Updated *string `json:"updated"`
}

func (r scheduleResponse) snapshot() domain.ScheduleSnapshot {
	snap := domain.ScheduleSnapshot{
		ActivePlaylist:       parsePlaylist(r.ActivePlaylistID),
		FallbackPlaylist:     parsePlaylist(r.FallbackPlaylistID),
		ScheduleEndsAt:       parseTime(r.ScheduleEndsAt),
		NextScheduleStartsAt: parseTime(r.NextScheduleStartsAt),
		NextPlaylist:         parsePlaylist(r.NextPlaylistID),
	}
	if r.UpdateFlags != nil {
		snap.UpdateFlags = &domain.UpdateFlags{
			ContentUpdateNeeded:  r.UpdateFlags.ContentUpdateNeeded,
			PlaylistUpdateNeeded: r.UpdateFlags.PlaylistUpdateNeeded,
			ScheduleUpdateNeeded: r.UpdateFlags.ScheduleUpdateNeeded,
		}
	}
	return snap
}

func parsePlaylist(s *string) uuid.NullUUID {
	if s == nil {
		return domain.NoPlaylist()
	}
	id, err := uuid.Parse(strings.TrimSpace(*s))
	if err != nil {
		return domain.NoPlaylist()
	}
	return domain.Playlist(id)
}

func parseTime(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(*s))
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// Corps d'acquittement: tous les flags à false.
var ackBody = updateFlags{}
