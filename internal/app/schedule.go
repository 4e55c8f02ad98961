package app

import (
	"time"

	"github.com/google/uuid"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
)

const (
	BasePollInterval  = 20 * time.Second
	imminentPoll      = 10 * time.Second
	approachingPoll   = 30 * time.Second
	imminentWindow    = 5 * time.Minute
	approachingWindow = 30 * time.Minute
)

type PlaylistDecision struct {
	Desired uuid.NullUUID
	Changed bool
	// Resync: même playlist mais le serveur signale un contenu modifié.
	Resync bool
}

// NeedsSync: on ne synchronise jamais vers "aucune playlist".
func (d PlaylistDecision) NeedsSync() bool {
	return d.Desired.Valid && (d.Changed || d.Resync)
}

// ResolvePlaylistTransition choisit la playlist voulue: active, sinon secours, sinon aucune.
func ResolvePlaylistTransition(snap domain.ScheduleSnapshot, current uuid.NullUUID) PlaylistDecision {
	desired := domain.NoPlaylist()
	switch {
	case snap.ActivePlaylist.Valid:
		desired = snap.ActivePlaylist
	case snap.FallbackPlaylist.Valid:
		desired = snap.FallbackPlaylist
	}
	d := PlaylistDecision{Desired: desired, Changed: !domain.SamePlaylist(desired, current)}
	if !d.Changed && desired.Valid && snap.UpdateFlags != nil && snap.UpdateFlags.ContentStale() {
		d.Resync = true
	}
	return d
}

// CalculatePollInterval resserre la cadence à l'approche d'un changement de planning.
// Le prochain démarrage est prioritaire sur la fin du planning courant; une date
// déjà passée compte comme imminente.
func CalculatePollInterval(snap domain.ScheduleSnapshot, now time.Time) time.Duration {
	for _, at := range []*time.Time{snap.NextScheduleStartsAt, snap.ScheduleEndsAt} {
		if at == nil {
			continue
		}
		until := at.Sub(now)
		if until <= imminentWindow {
			return imminentPoll
		}
		if until <= approachingWindow {
			return approachingPoll
		}
	}
	return BasePollInterval
}
