package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessionEvents = `
CREATE TABLE IF NOT EXISTS session_events (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  BIGINT       NOT NULL,
    external_id TEXT         NOT NULL,
    language    TEXT         NOT NULL DEFAULT '',
    sample_rate INTEGER      NOT NULL DEFAULT 0,
    kind        TEXT         NOT NULL,
    occurred_at TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_events_external_id
    ON session_events (external_id);

CREATE INDEX IF NOT EXISTS idx_session_events_occurred_at
    ON session_events (occurred_at);
`

// migrate ensures the session_events table and its indexes exist. Idempotent
// and safe to call on every application start.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSessionEvents); err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// postgresLedger is a Ledger backed by a pgx connection pool.
type postgresLedger struct {
	pool *pgxpool.Pool
}

// New connects to the PostgreSQL database at dsn, verifies connectivity,
// and ensures the session_events table exists. The caller must call Close
// when the ledger is no longer needed.
func New(ctx context.Context, dsn string) (Ledger, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &postgresLedger{pool: pool}, nil
}

// RecordEvent appends ev as a new row in session_events.
func (l *postgresLedger) RecordEvent(ctx context.Context, ev Event) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO session_events (session_id, external_id, language, sample_rate, kind, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.SessionID, ev.ExternalID, ev.Language, ev.SampleRate, string(ev.Kind), ev.At,
	)
	if err != nil {
		return fmt.Errorf("audit: record event: %w", err)
	}
	return nil
}

// Close releases all pooled connections.
func (l *postgresLedger) Close() {
	l.pool.Close()
}

// Ping verifies the underlying connection is reachable. Used by the
// readiness check.
func (l *postgresLedger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}
