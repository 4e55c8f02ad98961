package domain

import (
	"time"

	"github.com/google/uuid"
)

type UpdateFlags struct {
	ContentUpdateNeeded  bool `json:"content_update_needed"`
	PlaylistUpdateNeeded bool `json:"playlist_update_needed"`
	ScheduleUpdateNeeded bool `json:"schedule_update_needed"`
}

// ContentStale indique que le contenu de la playlist courante a changé côté serveur.
func (f UpdateFlags) ContentStale() bool {
	return f.ContentUpdateNeeded || f.PlaylistUpdateNeeded
}

// ScheduleSnapshot est la réponse éphémère de /client-timeline-schedule.
// Les ids non-UUID et les dates illisibles sont considérés absents.
type ScheduleSnapshot struct {
	ActivePlaylist       uuid.NullUUID
	FallbackPlaylist     uuid.NullUUID
	ScheduleEndsAt       *time.Time
	NextScheduleStartsAt *time.Time
	NextPlaylist         uuid.NullUUID

	// nil = aucun flag en attente.
	UpdateFlags *UpdateFlags
}

// ApplySchedule reporte les métadonnées du planning dans l'état.
// Renvoie false si rien n'a changé.
func (s *SyncState) ApplySchedule(snap ScheduleSnapshot) bool {
	if sameTime(s.ActiveScheduleEnds, snap.ScheduleEndsAt) &&
		sameTime(s.NextScheduleStarts, snap.NextScheduleStartsAt) &&
		SamePlaylist(s.NextPlaylistID, snap.NextPlaylist) &&
		SamePlaylist(s.FallbackPlaylistID, snap.FallbackPlaylist) {
		return false
	}
	s.ActiveScheduleEnds = snap.ScheduleEndsAt
	s.NextScheduleStarts = snap.NextScheduleStartsAt
	s.NextPlaylistID = snap.NextPlaylist
	s.FallbackPlaylistID = snap.FallbackPlaylist
	return true
}
