package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
)

type StateStore interface {
	// Load renvoie l'état persisté; un fichier absent est créé avec un état vide.
	Load(ctx context.Context) (domain.SyncState, error)
	Save(ctx context.Context, state domain.SyncState) error
	// WriteManifest remplace atomiquement la playlist du lecteur.
	WriteManifest(ctx context.Context, paths []string) error
	ManifestPath() string
	StatePath() string
}

type AssetStore interface {
	// Ensure télécharge l'asset s'il est absent et renvoie son chemin absolu.
	Ensure(ctx context.Context, v domain.Video) (string, error)
	Allowed(v domain.Video) bool
	// Prune supprime tout fichier du dossier d'assets absent de keep.
	Prune(ctx context.Context, keep []string) (removed int, err error)
}

type SyncJournal interface {
	Record(ctx context.Context, rec domain.SyncRecord) (domain.SyncRecord, error)
	// Get renvoie ErrNotFound si l'entrée a été purgée.
	Get(ctx context.Context, id string) (domain.SyncRecord, error)
	List(ctx context.Context, limit int) ([]domain.SyncRecord, error)
}
