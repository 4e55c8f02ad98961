package app

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/metrics"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

// SyncTarget désigne ce qu'il faut synchroniser: une playlist, ou tout le
// contenu de l'appareil (mode historique, Playlist absent).
type SyncTarget struct {
	Playlist uuid.NullUUID
	// Stamp est l'horodatage serveur à enregistrer en mode historique.
	Stamp  *time.Time
	Source domain.SyncSource
}

func PlaylistTarget(id uuid.UUID) SyncTarget {
	return SyncTarget{Playlist: domain.Playlist(id), Source: domain.SourceSchedule}
}

func LegacyTarget(stamp *time.Time) SyncTarget {
	return SyncTarget{Stamp: stamp, Source: domain.SourceLegacy}
}

// ContentSynchronizer est le seul à modifier l'état de synchronisation.
type ContentSynchronizer struct {
	content ports.ContentAPI
	assets  ports.AssetStore
	store   ports.StateStore
	journal ports.SyncJournal
	bus     ports.EventBus
	logger  zerolog.Logger
	now     func() time.Time
}

func NewContentSynchronizer(content ports.ContentAPI, assets ports.AssetStore, store ports.StateStore, journal ports.SyncJournal, bus ports.EventBus, logger zerolog.Logger) *ContentSynchronizer {
	return &ContentSynchronizer{
		content: content,
		assets:  assets,
		store:   store,
		journal: journal,
		bus:     bus,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sync récupère la liste, télécharge les assets, puis valide dans l'ordre
// état → manifeste → nettoyage. En cas d'échec avant le manifeste, ni l'état
// en mémoire ni les fichiers ne changent. L'annulation de ctx est vérifiée
// entre les étapes: une requête API déjà partie va jusqu'au bout, un
// téléchargement en cours est abandonné.
func (s *ContentSynchronizer) Sync(ctx context.Context, state *domain.SyncState, target SyncTarget) error {
	started := s.now()
	playlist := domain.PlaylistString(target.Playlist)
	logger := s.logger.With().Str("source", string(target.Source)).Str("playlist_id", playlist).Logger()

	videos, paths, err := s.prepare(ctx, target, logger)
	if err != nil {
		s.finish(ctx, target, started, 0, err)
		return err
	}

	if err := ctx.Err(); err != nil {
		err = aborted("commit", target, err)
		s.finish(ctx, target, started, 0, err)
		return err
	}

	next := state.Clone()
	next.Videos = videos
	next.CurrentPlaylist = target.Playlist
	next.UpdateContentRequested = false
	if target.Playlist.Valid {
		now := s.now()
		next.LastUpdate = &now
	} else {
		next.LastUpdate = target.Stamp
	}

	if err := s.store.Save(ctx, next); err != nil {
		s.finish(ctx, target, started, 0, err)
		return err
	}
	if err := s.store.WriteManifest(ctx, paths); err != nil {
		// le manifeste précédent est intact: on remet l'état qui lui correspond
		if rerr := s.store.Save(ctx, *state); rerr != nil {
			logger.Error().Err(rerr).Msg("restore previous state failed")
		}
		s.finish(ctx, target, started, 0, err)
		return err
	}
	*state = next

	keep := append(append([]string{}, paths...), s.store.ManifestPath(), s.store.StatePath())
	if removed, err := s.assets.Prune(ctx, keep); err != nil {
		logger.Warn().Err(err).Int("removed", removed).Msg("asset prune incomplete")
	} else if removed > 0 {
		logger.Info().Int("removed", removed).Msg("pruned stale assets")
	}

	s.finish(ctx, target, started, len(videos), nil)
	logger.Info().Int("videos", len(videos)).Dur("took", s.now().Sub(started)).Msg("content synchronized")
	return nil
}

func (s *ContentSynchronizer) prepare(ctx context.Context, target SyncTarget, logger zerolog.Logger) ([]domain.Video, []string, error) {
	var (
		videos []domain.Video
		err    error
	)
	if err := ctx.Err(); err != nil {
		return nil, nil, aborted("fetch", target, err)
	}
	fetchCtx := context.WithoutCancel(ctx)
	if target.Playlist.Valid {
		videos, err = s.content.PlaylistVideos(fetchCtx, target.Playlist.UUID)
	} else {
		videos, err = s.content.DeviceVideos(fetchCtx)
	}
	if err != nil {
		return nil, nil, err
	}
	domain.SortVideos(videos)

	kept := make([]domain.Video, 0, len(videos))
	for _, v := range videos {
		if !s.assets.Allowed(v) {
			logger.Warn().Str("asset_id", string(v.ID)).Str("asset_url", v.SourceURL).Msg("asset host not allowed, skipped")
			continue
		}
		kept = append(kept, v)
	}

	paths := make([]string, 0, len(kept))
	for _, v := range kept {
		if err := ctx.Err(); err != nil {
			return nil, nil, aborted("download", target, err)
		}
		path, err := s.assets.Ensure(ctx, v)
		if err != nil {
			return nil, nil, err
		}
		paths = append(paths, path)
	}
	return kept, paths, nil
}

func aborted(op string, target SyncTarget, err error) error {
	return &domain.Error{Kind: domain.ErrFetch, Op: op, PlaylistID: domain.PlaylistString(target.Playlist), Err: err}
}

// RecordSchedule reporte les métadonnées du planning dans l'état et ne
// persiste que si elles ont changé.
func (s *ContentSynchronizer) RecordSchedule(ctx context.Context, state *domain.SyncState, snap domain.ScheduleSnapshot) error {
	next := state.Clone()
	if !next.ApplySchedule(snap) {
		return nil
	}
	if err := s.store.Save(ctx, next); err != nil {
		return err
	}
	*state = next
	return nil
}

type syncEvent struct {
	Source     string `json:"source"`
	PlaylistID string `json:"playlistId,omitempty"`
	Videos     int    `json:"videos"`
	ErrorKind  string `json:"errorKind,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *ContentSynchronizer) finish(ctx context.Context, target SyncTarget, started time.Time, count int, err error) {
	finished := s.now()
	outcome := domain.SyncSucceeded
	topic := ports.TopicSyncCompleted
	if err != nil {
		outcome = domain.SyncFailed
		topic = ports.TopicSyncFailed
		s.logger.Warn().Err(err).Str("source", string(target.Source)).Str("playlist_id", domain.PlaylistString(target.Playlist)).
			Str("kind", domain.KindName(err)).Msg("content sync failed")
	}
	metrics.RecordSync(string(target.Source), string(outcome), finished.Sub(started))

	rec := domain.SyncRecord{
		Source:     target.Source,
		PlaylistID: domain.PlaylistString(target.Playlist),
		Outcome:    outcome,
		VideoCount: count,
		ErrorKind:  domain.KindName(err),
		StartedAt:  started,
		FinishedAt: finished,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if s.journal != nil {
		if _, jerr := s.journal.Record(context.WithoutCancel(ctx), rec); jerr != nil {
			s.logger.Warn().Err(jerr).Msg("sync journal write failed")
		}
	}
	if s.bus != nil {
		b, _ := json.Marshal(syncEvent{
			Source:     string(rec.Source),
			PlaylistID: rec.PlaylistID,
			Videos:     rec.VideoCount,
			ErrorKind:  rec.ErrorKind,
			Error:      rec.Error,
		})
		s.bus.Publish(topic, b)
	}
}
