package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// SyncState est l'état durable du dernier contenu appliqué (data.json).
type SyncState struct {
	Videos             []Video       `json:"videos"`
	LastUpdate         *time.Time    `json:"last_update"`
	CurrentPlaylist    uuid.NullUUID `json:"current_playlist"`
	ActiveScheduleEnds *time.Time    `json:"active_schedule_ends"`
	NextScheduleStarts *time.Time    `json:"next_schedule_starts"`
	NextPlaylistID     uuid.NullUUID `json:"next_playlist_id"`
	FallbackPlaylistID uuid.NullUUID `json:"fallback_playlist_id"`

	UpdateContentRequested bool `json:"update_content"`
}

// Clone copie l'état sans partager la slice de vidéos.
func (s SyncState) Clone() SyncState {
	out := s
	out.Videos = slices.Clone(s.Videos)
	return out
}

func NoPlaylist() uuid.NullUUID { return uuid.NullUUID{} }

func Playlist(id uuid.UUID) uuid.NullUUID { return uuid.NullUUID{UUID: id, Valid: true} }

// SamePlaylist compare deux ids optionnels (deux absents sont égaux).
func SamePlaylist(a, b uuid.NullUUID) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.UUID == b.UUID
}

// PlaylistString est pratique pour les logs ("" si absent).
func PlaylistString(id uuid.NullUUID) string {
	if !id.Valid {
		return ""
	}
	return id.UUID.String()
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
