package ports

import (
	"context"
	"time"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/google/uuid"
)

type ContentAPI interface {
	PlaylistVideos(ctx context.Context, playlist uuid.UUID) ([]domain.Video, error)
	DeviceVideos(ctx context.Context) ([]domain.Video, error)
}

type ScheduleAPI interface {
	TimelineSchedule(ctx context.Context) (domain.ScheduleSnapshot, error)
	AcknowledgeUpdates(ctx context.Context) error
}

type LegacyAPI interface {
	// LastUpdated renvoie nil si le serveur n'a aucun horodatage.
	LastUpdated(ctx context.Context) (*time.Time, error)
}
