package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
)

type Player interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// EnsureRunning relance le lecteur s'il est mort; renvoie true s'il a été relancé.
	EnsureRunning(ctx context.Context) (bool, error)
	Reload(ctx context.Context) error
	State() domain.PlayerState
}
