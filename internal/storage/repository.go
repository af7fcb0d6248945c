package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createRunsTableSQL = `CREATE TABLE IF NOT EXISTS download_runs (
        id             BIGSERIAL PRIMARY KEY,
        started_at     TIMESTAMPTZ NOT NULL,
        finished_at    TIMESTAMPTZ NOT NULL,
        status         TEXT        NOT NULL,
        attempted      INTEGER     NOT NULL,
        succeeded      INTEGER     NOT NULL,
        failed         INTEGER     NOT NULL,
        failed_symbols TEXT[]      NOT NULL DEFAULT '{}',
        artifact_path  TEXT,
        row_count      INTEGER     NOT NULL DEFAULT 0,
        symbol_count   INTEGER     NOT NULL DEFAULT 0,
        byte_size      BIGINT      NOT NULL DEFAULT 0,
        error          TEXT,
        created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`

	insertRunSQL = `INSERT INTO download_runs (
        started_at,
        finished_at,
        status,
        attempted,
        succeeded,
        failed,
        failed_symbols,
        artifact_path,
        row_count,
        symbol_count,
        byte_size,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    RETURNING id, created_at;`

	listRecentRunsSQL = `SELECT
        id,
        started_at,
        finished_at,
        status,
        attempted,
        succeeded,
        failed,
        failed_symbols,
        artifact_path,
        row_count,
        symbol_count,
        byte_size,
        error,
        created_at
    FROM download_runs
    ORDER BY started_at DESC, id DESC
    LIMIT $1;`

	deleteRunsBeforeSQL = `DELETE FROM download_runs WHERE started_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RunStore persists batch run outcomes.
type RunStore interface {
	RecordRun(ctx context.Context, run RunRecord) (RunRecord, error)
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

var (
	_ RunStore       = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

// Store is the pgx-backed run ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the runs table when it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createRunsTableSQL); err != nil {
		return fmt.Errorf("create download_runs: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
// The lock is session scoped, so the connection is held until unlock is called.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// a failed unlock is released with the session; drop the connection
			conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

// RecordRun inserts a run and returns it with its assigned id.
func (s *Store) RecordRun(ctx context.Context, run RunRecord) (RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return RunRecord{}, err
	}

	failed := run.FailedSymbols
	if failed == nil {
		failed = []string{}
	}

	var artifact interface{}
	if run.ArtifactPath != nil {
		artifact = *run.ArtifactPath
	}
	var errMsg interface{}
	if run.Error != nil {
		errMsg = *run.Error
	}

	if scanErr := pool.QueryRow(ctx, insertRunSQL,
		run.StartedAt,
		run.FinishedAt,
		run.Status,
		run.Attempted,
		run.Succeeded,
		run.Failed,
		failed,
		artifact,
		run.RowCount,
		run.SymbolCount,
		run.ByteSize,
		errMsg,
	).Scan(&run.ID, &run.CreatedAt); scanErr != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", scanErr)
	}
	return run, nil
}

// ListRecentRuns lists the most recent runs, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// DeleteRunsBefore removes ledger rows started before olderThan.
func (s *Store) DeleteRunsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteRunsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete runs before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func scanRun(rows pgx.Rows) (RunRecord, error) {
	var (
		run      RunRecord
		artifact sql.NullString
		errMsg   sql.NullString
	)

	if err := rows.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Attempted,
		&run.Succeeded,
		&run.Failed,
		&run.FailedSymbols,
		&artifact,
		&run.RowCount,
		&run.SymbolCount,
		&run.ByteSize,
		&errMsg,
		&run.CreatedAt,
	); err != nil {
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}

	if artifact.Valid {
		path := artifact.String
		run.ArtifactPath = &path
	}
	if errMsg.Valid {
		msg := errMsg.String
		run.Error = &msg
	}
	return run, nil
}
