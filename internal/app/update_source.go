package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

const ackTimeout = 30 * time.Second

type UpdateResult struct {
	Source         domain.SyncSource
	ContentChanged bool
	PollInterval   time.Duration
}

// UpdateSource décide s'il faut rafraîchir le contenu et à quel rythme interroger.
// Une erreur signifie que la source n'a pas pu décider (serveur injoignable ou
// réponse invalide); la chaîne passe alors à la suivante.
type UpdateSource interface {
	Name() string
	Check(ctx context.Context, state *domain.SyncState) (UpdateResult, error)
}

// ScheduleAware suit /client-timeline-schedule.
type ScheduleAware struct {
	api    ports.ScheduleAPI
	syncer *ContentSynchronizer
	bus    ports.EventBus
	logger zerolog.Logger
	now    func() time.Time

	acks sync.WaitGroup
}

func NewScheduleAware(api ports.ScheduleAPI, syncer *ContentSynchronizer, bus ports.EventBus, logger zerolog.Logger) *ScheduleAware {
	return &ScheduleAware{api: api, syncer: syncer, bus: bus, logger: logger, now: time.Now}
}

func (s *ScheduleAware) Name() string { return string(domain.SourceSchedule) }

func (s *ScheduleAware) Check(ctx context.Context, state *domain.SyncState) (UpdateResult, error) {
	snap, err := s.api.TimelineSchedule(context.WithoutCancel(ctx))
	if err != nil {
		return UpdateResult{Source: domain.SourceSchedule}, err
	}
	res := UpdateResult{Source: domain.SourceSchedule, PollInterval: CalculatePollInterval(snap, s.now())}
	s.publishPoll(snap, res.PollInterval)

	if err := s.syncer.RecordSchedule(ctx, state, snap); err != nil {
		s.logger.Warn().Err(err).Msg("persist schedule metadata failed")
	}

	decision := ResolvePlaylistTransition(snap, state.CurrentPlaylist)
	if !decision.Changed && decision.Desired.Valid && state.UpdateContentRequested {
		decision.Resync = true
	}

	processed := true
	switch {
	case decision.NeedsSync():
		s.logger.Info().
			Str("from", domain.PlaylistString(state.CurrentPlaylist)).
			Str("playlist_id", domain.PlaylistString(decision.Desired)).
			Bool("resync", decision.Resync).
			Msg("playlist sync required")
		if err := s.syncer.Sync(ctx, state, PlaylistTarget(decision.Desired.UUID)); err != nil {
			processed = false
		} else {
			res.ContentChanged = true
		}
	case decision.Changed:
		s.logger.Warn().Str("playlist_id", domain.PlaylistString(state.CurrentPlaylist)).
			Msg("no active or fallback playlist, keeping current content")
	}

	if snap.UpdateFlags != nil && processed {
		s.acknowledge(ctx, *snap.UpdateFlags)
	}
	return res, nil
}

// acknowledge part en arrière-plan et ne touche pas à l'état.
func (s *ScheduleAware) acknowledge(ctx context.Context, flags domain.UpdateFlags) {
	s.acks.Add(1)
	go func() {
		defer s.acks.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
		defer cancel()
		if err := s.api.AcknowledgeUpdates(actx); err != nil {
			s.logger.Warn().Err(err).Str("kind", domain.KindName(err)).Msg("acknowledge update flags failed")
			return
		}
		s.logger.Debug().
			Bool("content", flags.ContentUpdateNeeded).
			Bool("playlist", flags.PlaylistUpdateNeeded).
			Bool("schedule", flags.ScheduleUpdateNeeded).
			Msg("update flags acknowledged")
	}()
}

// Wait attend les acquittements en cours (arrêt, tests).
func (s *ScheduleAware) Wait() { s.acks.Wait() }

type pollEvent struct {
	ActivePlaylist   string  `json:"activePlaylist,omitempty"`
	FallbackPlaylist string  `json:"fallbackPlaylist,omitempty"`
	IntervalSeconds  float64 `json:"intervalSeconds"`
	PendingFlags     bool    `json:"pendingFlags"`
}

func (s *ScheduleAware) publishPoll(snap domain.ScheduleSnapshot, interval time.Duration) {
	if s.bus == nil {
		return
	}
	b, _ := json.Marshal(pollEvent{
		ActivePlaylist:   domain.PlaylistString(snap.ActivePlaylist),
		FallbackPlaylist: domain.PlaylistString(snap.FallbackPlaylist),
		IntervalSeconds:  interval.Seconds(),
		PendingFlags:     snap.UpdateFlags != nil,
	})
	s.bus.Publish(ports.TopicSchedulePolled, b)
}

// FallbackChain essaie chaque source dans l'ordre et garde le premier résultat.
type FallbackChain struct {
	sources []UpdateSource
	logger  zerolog.Logger
}

func NewFallbackChain(logger zerolog.Logger, sources ...UpdateSource) *FallbackChain {
	return &FallbackChain{sources: sources, logger: logger}
}

func (c *FallbackChain) Name() string { return "chain" }

func (c *FallbackChain) Check(ctx context.Context, state *domain.SyncState) (UpdateResult, error) {
	var errs []error
	for i, src := range c.sources {
		res, err := src.Check(ctx, state)
		if err == nil {
			return res, nil
		}
		ev := c.logger.Warn().Err(err).Str("update_source", src.Name()).Str("kind", domain.KindName(err))
		var de *domain.Error
		if errors.As(err, &de) {
			ev = ev.Str("endpoint", de.Endpoint).Int("status", de.Status)
		}
		if i < len(c.sources)-1 {
			ev.Str("next", c.sources[i+1].Name()).Msg("update source failed, falling back")
		} else {
			ev.Msg("update source failed")
		}
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return UpdateResult{}, errors.Join(errs...)
}
