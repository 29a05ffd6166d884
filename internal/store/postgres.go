package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/metrics"
)

const schema = `CREATE TABLE IF NOT EXISTS sbox_reports (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	report     JSONB NOT NULL
)`

// querier is the subset of *pgxpool.Pool used by PostgresStore.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists reports as JSONB rows.
type PostgresStore struct {
	db   querier
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the reports table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	s := &PostgresStore{db: pool, pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Printf("store: connected to postgres %s", cfg.ConnConfig.Host)
	return s, nil
}

func newPostgresStore(db querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the reports table if needed.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// Save upserts r.
func (s *PostgresStore) Save(ctx context.Context, r analysis.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		metrics.RecordStoreOperation("save", "error")
		return fmt.Errorf("store: encode report: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO sbox_reports (id, created_at, report)
         VALUES ($1, $2, $3)
         ON CONFLICT (id) DO UPDATE SET created_at = EXCLUDED.created_at, report = EXCLUDED.report`,
		r.ID, r.CreatedAt, payload,
	)
	if err != nil {
		metrics.RecordStoreOperation("save", "error")
		return fmt.Errorf("store: save report %s: %w", r.ID, err)
	}
	metrics.RecordStoreOperation("save", "ok")
	return nil
}

// Get loads the report stored under id.
func (s *PostgresStore) Get(ctx context.Context, id string) (analysis.Report, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `SELECT report FROM sbox_reports WHERE id=$1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.RecordStoreOperation("get", "miss")
			return analysis.Report{}, ErrNotFound
		}
		metrics.RecordStoreOperation("get", "error")
		return analysis.Report{}, fmt.Errorf("store: load report %s: %w", id, err)
	}

	var r analysis.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		metrics.RecordStoreOperation("get", "error")
		return analysis.Report{}, fmt.Errorf("store: decode report %s: %w", id, err)
	}
	metrics.RecordStoreOperation("get", "ok")
	return r, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
