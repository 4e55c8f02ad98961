package signageapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
)

var errServerUnhealthy = errors.New("server reported an internal error")

// Health fait un unique GET /health.
func (c *Client) Health(ctx context.Context) error {
	err := c.do(ctx, request{method: http.MethodGet, path: "/health", endpoint: "/health"}, domain.ErrTransport, domain.ErrProtocol, nil)
	var de *domain.Error
	if errors.As(err, &de) && de.Status == http.StatusInternalServerError {
		return &domain.Error{Kind: domain.ErrProtocol, Op: "health", Endpoint: "/health", Status: de.Status, Err: errServerUnhealthy}
	}
	return err
}

// WaitReady attend que /health réponde 200, avec un délai exponentiel
// plafonné. N'abandonne qu'à l'annulation du contexte.
func (c *Client) WaitReady(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.readyMin
	b.MaxInterval = c.readyMax
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := c.Health(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("signage server not ready")
	})
}
