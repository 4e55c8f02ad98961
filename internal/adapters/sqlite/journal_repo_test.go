package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestJournalRepository_RecordAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewJournalRepository(openMemory(t).SQL)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first, err := repo.Record(ctx, domain.SyncRecord{
		Source:     domain.SourceSchedule,
		PlaylistID: "5f1d7a4e-8a57-4c9e-9d55-5f6b2b1f0a01",
		Outcome:    domain.SyncSucceeded,
		VideoCount: 3,
		StartedAt:  base,
		FinishedAt: base.Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := repo.Record(ctx, domain.SyncRecord{
		Source:     domain.SourceLegacy,
		Outcome:    domain.SyncFailed,
		ErrorKind:  "fetch",
		Error:      "status 502",
		StartedAt:  base.Add(time.Minute),
		FinishedAt: base.Add(time.Minute + time.Second),
	}); err != nil {
		t.Fatalf("Record(failed): %v", err)
	}

	got, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Outcome != domain.SyncFailed || got[0].ErrorKind != "fetch" {
		t.Fatalf("expected newest failed record first, got %+v", got[0])
	}
	if got[1].VideoCount != 3 || !got[1].StartedAt.Equal(base) {
		t.Fatalf("unexpected first record %+v", got[1])
	}
}

func TestJournalRepository_Get(t *testing.T) {
	ctx := context.Background()
	repo := NewJournalRepository(openMemory(t).SQL)

	rec, err := repo.Record(ctx, domain.SyncRecord{Source: domain.SourceSchedule, Outcome: domain.SyncSucceeded, VideoCount: 1})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := repo.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != rec.ID || got.VideoCount != 1 || got.Source != domain.SourceSchedule {
		t.Fatalf("unexpected record %+v", got)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJournalRepository_TrimsOldRows(t *testing.T) {
	ctx := context.Background()
	repo := NewJournalRepository(openMemory(t).SQL)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range journalMaxRows + 5 {
		at := base.Add(time.Duration(i) * time.Second)
		if _, err := repo.Record(ctx, domain.SyncRecord{Source: domain.SourceLegacy, Outcome: domain.SyncSucceeded, StartedAt: at, FinishedAt: at}); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}
	var n int
	if err := repo.db.QueryRow(`SELECT COUNT(*) FROM sync_journal`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != journalMaxRows {
		t.Fatalf("expected %d rows, got %d", journalMaxRows, n)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openMemory(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	var n int
	if err := db.SQL.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 applied migration, got %d", n)
	}
}

func TestExtractUp(t *testing.T) {
	in := "-- +migrate Up\nCREATE TABLE a(x);\n-- +migrate Down\nDROP TABLE a;\n"
	if got := extractUp(in); got != "CREATE TABLE a(x);" {
		t.Fatalf("unexpected up section %q", got)
	}
}
