package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Метки времени хранятся строкой фиксированной ширины в UTC,
// чтобы ORDER BY по тексту совпадал с хронологией.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		flow        TEXT NOT NULL,
		source      TEXT NOT NULL DEFAULT '',
		state       TEXT NOT NULL,
		error       TEXT,
		data        TEXT,
		operations  INTEGER NOT NULL DEFAULT 0,
		completed   INTEGER NOT NULL DEFAULT 0,
		started_at  TEXT NOT NULL,
		finished_at TEXT
	);
	CREATE INDEX IF NOT EXISTS runs_flow_started_idx ON runs (flow, started_at DESC);
`

// SQLiteStore — локальное хранилище запусков в SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite открывает (или создаёт) файл БД и применяет схему.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Одно соединение: SQLite сериализует запись, а :memory: живёт в пределах соединения.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate runs: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save создаёт или обновляет запись.
func (s *SQLiteStore) Save(ctx context.Context, rec *RunRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO runs (id, flow, source, state, error, data, operations, completed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET state = excluded.state, error = excluded.error, data = excluded.data,
		    operations = excluded.operations, completed = excluded.completed,
		    finished_at = excluded.finished_at
	`
	var finished *string
	if rec.FinishedAt != nil {
		ts := formatTime(*rec.FinishedAt)
		finished = &ts
	}
	var data *string
	if len(rec.Data) > 0 {
		raw := string(rec.Data)
		data = &raw
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID.String(),
		rec.Flow,
		rec.Source,
		rec.State,
		nullString(rec.Error),
		data,
		rec.Operations,
		rec.Completed,
		formatTime(rec.StartedAt),
		finished,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// Get возвращает запись по ID.
func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	query := `
		SELECT id, flow, source, state, error, data, operations, completed, started_at, finished_at
		FROM runs
		WHERE id = ?
	`
	rec, err := scanSQLite(s.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List возвращает записи, начиная с последних.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]RunRecord, error) {
	query := `
		SELECT id, flow, source, state, error, data, operations, completed, started_at, finished_at
		FROM runs
		WHERE (? = '' OR flow = ?)
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, filter.Flow, filter.Flow, filter.limit())
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// Close закрывает БД.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteRow interface {
	Scan(dest ...any) error
}

// scanSQLite сканирует одну строку в RunRecord.
func scanSQLite(row sqliteRow) (*RunRecord, error) {
	var (
		rec      RunRecord
		id       string
		runError sql.NullString
		data     sql.NullString
		started  string
		finished sql.NullString
	)

	err := row.Scan(
		&id,
		&rec.Flow,
		&rec.Source,
		&rec.State,
		&runError,
		&data,
		&rec.Operations,
		&rec.Completed,
		&started,
		&finished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	if rec.StartedAt, err = time.Parse(sqliteTimeLayout, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		ts, err := time.Parse(sqliteTimeLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		rec.FinishedAt = &ts
	}
	rec.Error = runError.String
	if data.Valid {
		rec.Data = []byte(data.String)
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
