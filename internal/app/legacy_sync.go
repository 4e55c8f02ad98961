package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

const LegacyPollInterval = 20 * time.Second

// NeedsLegacyUpdate: demande explicite, horodatage serveur plus récent, ou
// aucun horodatage local. Sans horodatage d'un côté ni de l'autre, seul un
// appareil qui n'a jamais rien synchronisé déclenche une passe.
func NeedsLegacyUpdate(server *time.Time, state domain.SyncState) bool {
	if state.UpdateContentRequested {
		return true
	}
	local := state.LastUpdate
	if local == nil {
		return server != nil || neverSynced(state)
	}
	return server != nil && server.After(*local)
}

func neverSynced(state domain.SyncState) bool {
	return len(state.Videos) == 0 && !state.CurrentPlaylist.Valid
}

// Legacy compare l'horodatage de /sync/{id} à la dernière mise à jour locale
// et resynchronise tout le contenu de l'appareil si besoin.
type Legacy struct {
	api      ports.LegacyAPI
	syncer   *ContentSynchronizer
	logger   zerolog.Logger
	interval time.Duration
}

func NewLegacy(api ports.LegacyAPI, syncer *ContentSynchronizer, interval time.Duration, logger zerolog.Logger) *Legacy {
	if interval <= 0 {
		interval = LegacyPollInterval
	}
	return &Legacy{api: api, syncer: syncer, logger: logger, interval: interval}
}

func (l *Legacy) Name() string { return string(domain.SourceLegacy) }

// Check ne renvoie d'erreur que si le serveur n'a pas pu être interrogé;
// un échec de synchronisation est journalisé et retenté au prochain tick.
func (l *Legacy) Check(ctx context.Context, state *domain.SyncState) (UpdateResult, error) {
	res := UpdateResult{Source: domain.SourceLegacy, PollInterval: l.interval}

	server, err := l.api.LastUpdated(context.WithoutCancel(ctx))
	if err != nil {
		return res, err
	}
	if !NeedsLegacyUpdate(server, *state) {
		l.logger.Debug().Msg("no legacy update available")
		return res, nil
	}

	l.logger.Info().Time("server_updated", derefTime(server)).Bool("requested", state.UpdateContentRequested).Msg("legacy update detected")
	if err := l.syncer.Sync(ctx, state, LegacyTarget(server)); err != nil {
		return res, nil
	}
	res.ContentChanged = true
	return res, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
