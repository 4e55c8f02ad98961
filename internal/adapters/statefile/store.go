package statefile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/infra/fsx"
)

// Store persiste l'état de synchronisation (data.json) et le manifeste (playlist.txt).
type Store struct {
	statePath    string
	manifestPath string
}

func New(statePath, manifestPath string) *Store {
	return &Store{statePath: statePath, manifestPath: manifestPath}
}

func (s *Store) StatePath() string    { return s.statePath }
func (s *Store) ManifestPath() string { return s.manifestPath }

// Load lit data.json; au premier démarrage le fichier est créé avec un état vide.
func (s *Store) Load(ctx context.Context) (domain.SyncState, error) {
	b, err := os.ReadFile(s.statePath)
	if errors.Is(err, os.ErrNotExist) {
		empty := domain.SyncState{Videos: []domain.Video{}}
		if err := s.Save(ctx, empty); err != nil {
			return domain.SyncState{}, err
		}
		return empty, nil
	}
	if err != nil {
		return domain.SyncState{}, ioErr("load state", err)
	}

	var st domain.SyncState
	if err := json.Unmarshal(b, &st); err != nil {
		return domain.SyncState{}, ioErr("load state", fmt.Errorf("parse %s: %w", filepath.Base(s.statePath), err))
	}
	if st.Videos == nil {
		st.Videos = []domain.Video{}
	}
	return st, nil
}

func (s *Store) Save(_ context.Context, st domain.SyncState) error {
	if st.Videos == nil {
		st.Videos = []domain.Video{}
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return ioErr("save state", err)
	}
	if err := fsx.WriteFileAtomic(s.statePath, append(b, '\n'), 0o644); err != nil {
		return ioErr("save state", err)
	}
	return nil
}

// WriteManifest remplace playlist.txt: un chemin absolu par ligne.
func (s *Store) WriteManifest(_ context.Context, paths []string) error {
	if err := fsx.WriteLinesAtomic(s.manifestPath, paths, 0o644); err != nil {
		return ioErr("write manifest", err)
	}
	return nil
}

func ioErr(op string, err error) error {
	return &domain.Error{Kind: domain.ErrIO, Op: op, Err: err}
}
