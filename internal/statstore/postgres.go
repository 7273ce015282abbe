package statstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the correction_runs table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS correction_runs (
    id                 BIGSERIAL PRIMARY KEY,
    source_file        TEXT NOT NULL,
    total_segments     INTEGER NOT NULL DEFAULT 0,
    llm_usage          INTEGER NOT NULL DEFAULT 0,
    average_quality    DOUBLE PRECISION NOT NULL DEFAULT 0,
    high_quality_count INTEGER NOT NULL DEFAULT 0,
    input_tokens       INTEGER NOT NULL DEFAULT 0,
    output_tokens      INTEGER NOT NULL DEFAULT 0,
    cost_usd           DOUBLE PRECISION NOT NULL DEFAULT 0,
    cost_jpy           DOUBLE PRECISION NOT NULL DEFAULT 0,
    processed_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_correction_runs_source ON correction_runs(source_file);
CREATE INDEX IF NOT EXISTS idx_correction_runs_processed ON correction_runs(processed_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// correction_runs table and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("statstore: migrate: %w", err)
	}
	return nil
}

// Insert stores the run and fills in its ID and ProcessedAt from the
// database.
func (s *PostgresStore) Insert(ctx context.Context, run *Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO correction_runs (
			source_file, total_segments, llm_usage, average_quality,
			high_quality_count, input_tokens, output_tokens, cost_usd, cost_jpy
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, processed_at`

	err := s.db.QueryRow(ctx, query,
		run.SourceFile, run.TotalSegments, run.LLMUsage, run.AverageQuality,
		run.HighQualityCount, run.InputTokens, run.OutputTokens, run.CostUSD, run.CostJPY,
	).Scan(&run.ID, &run.ProcessedAt)
	if err != nil {
		return fmt.Errorf("statstore: insert: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first, at most limit. A
// non-positive limit returns an empty slice.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, nil
	}

	const query = `
		SELECT id, source_file, total_segments, llm_usage, average_quality,
		       high_quality_count, input_tokens, output_tokens, cost_usd,
		       cost_jpy, processed_at
		FROM correction_runs
		ORDER BY processed_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("statstore: list: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.ID, &r.SourceFile, &r.TotalSegments, &r.LLMUsage, &r.AverageQuality,
			&r.HighQualityCount, &r.InputTokens, &r.OutputTokens, &r.CostUSD,
			&r.CostJPY, &r.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("statstore: list scan: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statstore: list: %w", err)
	}
	return runs, nil
}
