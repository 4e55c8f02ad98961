package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/xid"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

// Au-delà, les plus anciennes entrées sont purgées à chaque écriture.
const journalMaxRows = 1000

type JournalRepository struct {
	db *sql.DB
}

func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

func (r *JournalRepository) Record(ctx context.Context, rec domain.SyncRecord) (domain.SyncRecord, error) {
	if rec.ID == "" {
		rec.ID = xid.New().String()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.FinishedAt
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_journal(id, source, playlist_id, outcome, video_count, error_kind, error_message, started_at, finished_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, string(rec.Source), rec.PlaylistID, string(rec.Outcome), rec.VideoCount, rec.ErrorKind, rec.Error,
		rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.FinishedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return domain.SyncRecord{}, err
	}

	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_journal WHERE id NOT IN (
			SELECT id FROM sync_journal ORDER BY finished_at DESC LIMIT ?
		)
	`, journalMaxRows); err != nil {
		return domain.SyncRecord{}, err
	}
	return rec, nil
}

func (r *JournalRepository) Get(ctx context.Context, id string) (domain.SyncRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source, playlist_id, outcome, video_count, error_kind, error_message, started_at, finished_at
		FROM sync_journal WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SyncRecord{}, ports.ErrNotFound
	}
	return rec, err
}

func (r *JournalRepository) List(ctx context.Context, limit int) ([]domain.SyncRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, playlist_id, outcome, video_count, error_kind, error_message, started_at, finished_at
		FROM sync_journal ORDER BY finished_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SyncRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (domain.SyncRecord, error) {
	var rec domain.SyncRecord
	var startedAt, finishedAt string
	if err := sc.Scan(&rec.ID, &rec.Source, &rec.PlaylistID, &rec.Outcome, &rec.VideoCount, &rec.ErrorKind, &rec.Error, &startedAt, &finishedAt); err != nil {
		return domain.SyncRecord{}, err
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
	return rec, nil
}
