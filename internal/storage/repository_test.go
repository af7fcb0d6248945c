package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"nse-history/internal/config"
)

// newTestStore connects to TEST_DATABASE_URL or skips.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	_ = godotenv.Load("../../.env")
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	store := NewStore(pool)
	t.Cleanup(store.Close)

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE download_runs`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return store
}

func TestUnconfiguredStore(t *testing.T) {
	var s *Store
	if _, err := s.ListRecentRuns(context.Background(), 5); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, _, err := NewStore(nil).TryAdvisoryLock(context.Background(), 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	s.Close()
}

func TestNewPoolRequiresDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestRunDuration(t *testing.T) {
	start := time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)
	run := RunRecord{StartedAt: start, FinishedAt: start.Add(90 * time.Second)}
	if run.Duration() != 90*time.Second {
		t.Fatalf("unexpected duration %s", run.Duration())
	}
	run.FinishedAt = start.Add(-time.Second)
	if run.Duration() != 0 {
		t.Fatal("negative spans clamp to zero")
	}
}

func TestRecordAndListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC)
	path := "/data/nse_data_20240315.parquet"
	first, err := store.RecordRun(ctx, RunRecord{
		StartedAt:     base,
		FinishedAt:    base.Add(time.Minute),
		Status:        StatusSucceeded,
		Attempted:     3,
		Succeeded:     2,
		Failed:        1,
		FailedSymbols: []string{"BAD"},
		ArtifactPath:  &path,
		RowCount:      510,
		SymbolCount:   2,
		ByteSize:      4096,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("expected id to be assigned")
	}

	msg := "no data"
	if _, err := store.RecordRun(ctx, RunRecord{
		StartedAt:  base.Add(time.Hour),
		FinishedAt: base.Add(time.Hour + time.Minute),
		Status:     StatusNoData,
		Attempted:  1,
		Failed:     1,
		Error:      &msg,
	}); err != nil {
		t.Fatalf("record second: %v", err)
	}

	runs, err := store.ListRecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Status != StatusNoData || runs[0].ArtifactPath != nil || runs[0].Error == nil {
		t.Fatalf("newest run should be the no-data one: %+v", runs[0])
	}
	if len(runs[0].FailedSymbols) != 0 {
		t.Fatalf("failed symbols should default to empty, got %v", runs[0].FailedSymbols)
	}
	older := runs[1]
	if older.RowCount != 510 || older.ArtifactPath == nil || *older.ArtifactPath != path {
		t.Fatalf("unexpected stored run %+v", older)
	}
	if len(older.FailedSymbols) != 1 || older.FailedSymbols[0] != "BAD" {
		t.Fatalf("failed symbols not stored: %v", older.FailedSymbols)
	}

	deleted, err := store.DeleteRunsBefore(ctx, base.Add(30*time.Minute))
	if err != nil || deleted != 1 {
		t.Fatalf("expected one deleted run, got %d (%v)", deleted, err)
	}
}

func TestAdvisoryLockExclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	unlock, ok, err := store.TryAdvisoryLock(ctx, 424242)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}

	_, ok, err = store.TryAdvisoryLock(ctx, 424242)
	if err != nil {
		t.Fatalf("second lock: %v", err)
	}
	if ok {
		t.Fatal("lock should be held by the first session")
	}

	unlock()
	unlock2, ok, err := store.TryAdvisoryLock(ctx, 424242)
	if err != nil || !ok {
		t.Fatalf("relock after unlock: ok=%v err=%v", ok, err)
	}
	unlock2()
}
