package signageapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/metrics"
)

func newScheduleBreaker(logger zerolog.Logger) *gobreaker.CircuitBreaker[domain.ScheduleSnapshot] {
	return gobreaker.NewCircuitBreaker[domain.ScheduleSnapshot](gobreaker.Settings{
		Name:        "client-timeline-schedule",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// une annulation locale ne dit rien de la santé du serveur
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.Set(float64(to))
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}

// TimelineSchedule interroge /client-timeline-schedule/{id} derrière le disjoncteur.
// Un disjoncteur ouvert est rapporté comme une erreur de transport.
func (c *Client) TimelineSchedule(ctx context.Context) (domain.ScheduleSnapshot, error) {
	snap, err := c.breaker.Execute(func() (domain.ScheduleSnapshot, error) {
		key, err := c.credential(ctx)
		if err != nil {
			return domain.ScheduleSnapshot{}, err
		}
		settings, _, _ := c.current()
		var out scheduleResponse
		if err := c.do(ctx, request{
			method:   http.MethodGet,
			path:     "/client-timeline-schedule/" + settings.DeviceID,
			endpoint: "/client-timeline-schedule/{id}",
			apiKey:   key,
		}, domain.ErrTransport, domain.ErrProtocol, &out); err != nil {
			return domain.ScheduleSnapshot{}, err
		}
		return out.snapshot(), nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.ScheduleSnapshot{}, &domain.Error{Kind: domain.ErrTransport, Op: "schedule", Endpoint: "/client-timeline-schedule/{id}", Err: err}
	}
	return snap, err
}

// AcknowledgeUpdates remet tous les flags de mise à jour à false côté serveur.
func (c *Client) AcknowledgeUpdates(ctx context.Context) error {
	key, err := c.credential(ctx)
	if err != nil {
		return err
	}
	settings, _, _ := c.current()
	return c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/client-update-flags/" + settings.DeviceID,
		endpoint: "/client-update-flags/{id}",
		apiKey:   key,
		body:     ackBody,
	}, domain.ErrTransport, domain.ErrProtocol, nil)
}

// LastUpdated lit l'horodatage de /sync/{id}; nil si le serveur n'en a pas.
func (c *Client) LastUpdated(ctx context.Context) (*time.Time, error) {
	settings, _, _ := c.current()
	var out syncResponse
	if err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/sync/" + settings.DeviceID,
		endpoint: "/sync/{id}",
	}, domain.ErrTransport, domain.ErrProtocol, &out); err != nil {
		return nil, err
	}
	return parseTime(out.Updated), nil
}

func (c *Client) PlaylistVideos(ctx context.Context, playlist uuid.UUID) ([]domain.Video, error) {
	return c.videos(ctx, "/playlists/"+playlist.String()+"/videos", "/playlists/{id}/videos", playlist.String())
}

// DeviceVideos renvoie tout le contenu assigné à l'appareil (mode historique).
func (c *Client) DeviceVideos(ctx context.Context) ([]domain.Video, error) {
	settings, _, _ := c.current()
	return c.videos(ctx, "/recieve-videos/"+settings.DeviceID, "/recieve-videos/{id}", "")
}

func (c *Client) videos(ctx context.Context, path, endpoint, playlist string) ([]domain.Video, error) {
	key, err := c.credential(ctx)
	if err != nil {
		return nil, &domain.Error{Kind: domain.ErrFetch, Op: "credential", Endpoint: endpoint, PlaylistID: playlist, Err: err}
	}
	var out []domain.Video
	if err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     path,
		endpoint: endpoint,
		apiKey:   key,
	}, domain.ErrFetch, domain.ErrFetch, &out); err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			de.PlaylistID = playlist
		}
		return nil, err
	}
	return out, nil
}
