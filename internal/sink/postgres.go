package sink

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/orthofit/internal/config"
	"github.com/sawpanic/orthofit/internal/sweep"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresSink upserts one table row per grid point, one transaction per
// grid row.
type PostgresSink struct {
	db      *sqlx.DB
	table   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// OpenPostgres opens and pings a connection pool.
func OpenPostgres(ctx context.Context, cfg config.PostgresOutput) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewPostgresSink writes into table using db.
func NewPostgresSink(db *sqlx.DB, table string, timeout time.Duration) (*PostgresSink, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PostgresSink{
		db:      db,
		table:   table,
		timeout: timeout,
		breaker: newBreaker("postgres-sink"),
	}, nil
}

// EnsureSchema creates the result table when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id       TEXT NOT NULL,
			row_idx      INTEGER NOT NULL,
			col_idx      INTEGER NOT NULL,
			coefficients DOUBLE PRECISION[] NOT NULL,
			approx_error DOUBLE PRECISION NOT NULL DEFAULT 0,
			degenerate   INTEGER NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (run_id, row_idx, col_idx)
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Name implements Sink.
func (s *PostgresSink) Name() string { return "postgres" }

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, res *Result) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, row_idx, col_idx, coefficients, approx_error, degenerate)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, row_idx, col_idx) DO UPDATE SET
			coefficients = EXCLUDED.coefficients,
			approx_error = EXCLUDED.approx_error,
			degenerate = EXCLUDED.degenerate`, s.table)

	for _, row := range res.Grid.Rows {
		if len(row.Cells) == 0 {
			continue
		}
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, s.writeRow(ctx, query, res.RunID, row)
		})
		if err != nil {
			return fmt.Errorf("failed to upsert row %d: %w", row.Index, err)
		}
	}
	return nil
}

func (s *PostgresSink) writeRow(ctx context.Context, query, runID string, row sweep.Row) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for _, cell := range row.Cells {
		if _, err := tx.ExecContext(ctx, query,
			runID, cell.Row, cell.Col, pq.Array(cell.Coefficients), cell.Error, cell.Degenerate); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Close implements Sink.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
