package app

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

// StatusUpdater reporte les résultats de synchronisation publiés sur le bus
// dans l'instantané de statut. Service suture.
type StatusUpdater struct {
	logger zerolog.Logger
	bus    ports.EventBus
	status *StatusTracker
	now    func() time.Time
}

func NewStatusUpdater(logger zerolog.Logger, bus ports.EventBus, status *StatusTracker) *StatusUpdater {
	return &StatusUpdater{logger: logger, bus: bus, status: status, now: time.Now}
}

func (u *StatusUpdater) String() string { return "status-updater" }

func (u *StatusUpdater) Serve(ctx context.Context) error {
	if u == nil || u.bus == nil || u.status == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ch, cancel := u.bus.Subscribe(ports.TopicSyncCompleted, ports.TopicSyncFailed)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-ch:
			if !ok {
				// bus fermé: arrêt en cours
				<-ctx.Done()
				return ctx.Err()
			}
			u.handleEvent(evt)
		}
	}
}

func (u *StatusUpdater) handleEvent(evt ports.Event) {
	if evt.Topic != ports.TopicSyncCompleted && evt.Topic != ports.TopicSyncFailed {
		return
	}
	var payload syncEvent
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		u.logger.Debug().Err(err).Str("topic", evt.Topic).Msg("invalid sync event payload")
		return
	}
	brief := &SyncBrief{
		At:         u.now().UTC(),
		Source:     payload.Source,
		PlaylistID: payload.PlaylistID,
		Succeeded:  evt.Topic == ports.TopicSyncCompleted,
		Videos:     payload.Videos,
		ErrorKind:  payload.ErrorKind,
	}
	u.status.Update(func(s *Status) {
		s.Syncs++
		if !brief.Succeeded {
			s.SyncFailures++
		}
		s.LastSync = brief
	})
}
