package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS runs (
		id          UUID PRIMARY KEY,
		flow        TEXT NOT NULL,
		source      TEXT NOT NULL DEFAULT '',
		state       TEXT NOT NULL,
		error       TEXT,
		data        JSONB,
		operations  INTEGER NOT NULL DEFAULT 0,
		completed   INTEGER NOT NULL DEFAULT 0,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS runs_flow_started_idx ON runs (flow, started_at DESC);
`

// PostgresStore — хранилище запусков в PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создаёт новый PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate создаёт таблицу runs.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate runs: %w", err)
	}
	return nil
}

// Save создаёт или обновляет запись.
func (s *PostgresStore) Save(ctx context.Context, rec *RunRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO runs (id, flow, source, state, error, data, operations, completed, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state, error = EXCLUDED.error, data = EXCLUDED.data,
		    operations = EXCLUDED.operations, completed = EXCLUDED.completed,
		    finished_at = EXCLUDED.finished_at
	`
	_, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.Flow,
		rec.Source,
		rec.State,
		nullString(rec.Error),
		nullJSON(rec.Data),
		rec.Operations,
		rec.Completed,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// Get возвращает запись по ID.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	query := `
		SELECT id, flow, source, state, error, data, operations, completed, started_at, finished_at
		FROM runs
		WHERE id = $1
	`
	rec, err := scanPostgres(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List возвращает записи, начиная с последних.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]RunRecord, error) {
	query := `
		SELECT id, flow, source, state, error, data, operations, completed, started_at, finished_at
		FROM runs
		WHERE ($1::text IS NULL OR flow = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, nullString(filter.Flow), filter.limit())
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// Close закрывает пул соединений.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// scanPostgres сканирует одну строку в RunRecord.
func scanPostgres(row pgx.Row) (*RunRecord, error) {
	var rec RunRecord
	var runError *string
	var data []byte

	err := row.Scan(
		&rec.ID,
		&rec.Flow,
		&rec.Source,
		&rec.State,
		&runError,
		&data,
		&rec.Operations,
		&rec.Completed,
		&rec.StartedAt,
		&rec.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if runError != nil {
		rec.Error = *runError
	}
	rec.Data = data
	return &rec, nil
}
