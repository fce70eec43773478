package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// pgUniqueViolation is the SQLSTATE Postgres reports for a unique or primary key conflict.
const pgUniqueViolation = "23505"

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// It also pings the database to ensure connectivity.
func NewPostgresConnection(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    round_weights INTEGER[] NOT NULL,
    swipe_budgets INTEGER[] NOT NULL,
    current_round INTEGER NOT NULL DEFAULT 0,
    is_matching   BOOLEAN NOT NULL DEFAULT FALSE,
    unmatched     TEXT[],
    finalized_at  TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS participants (
    id            TEXT PRIMARY KEY,
    cycle_id      TEXT NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
    telegram_id   BIGINT,
    display_name  TEXT NOT NULL,
    role          TEXT NOT NULL CHECK (role IN ('SPONSOR', 'APPLICANT')),
    max_slots     INTEGER NOT NULL DEFAULT 1,
    matches       TEXT[],
    last_shown_id TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT participants_cycle_telegram_unique UNIQUE (cycle_id, telegram_id)
);

CREATE INDEX IF NOT EXISTS idx_participants_cycle_role ON participants (cycle_id, role);
CREATE INDEX IF NOT EXISTS idx_participants_telegram ON participants (telegram_id);

CREATE TABLE IF NOT EXISTS swipes (
    seq            BIGSERIAL,
    participant_id TEXT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
    cycle_id       TEXT NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
    round_index    INTEGER NOT NULL,
    counterpart_id TEXT NOT NULL,
    direction      TEXT NOT NULL CHECK (direction IN ('REJECT', 'DESIRE')),
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (participant_id, round_index, counterpart_id)
);

CREATE INDEX IF NOT EXISTS idx_swipes_cycle ON swipes (cycle_id, participant_id, round_index, seq);

CREATE TABLE IF NOT EXISTS boundary_events (
    id           TEXT PRIMARY KEY,
    cycle_id     TEXT NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
    start_time   TIMESTAMPTZ NOT NULL,
    end_time     TIMESTAMPTZ NOT NULL,
    processed    BOOLEAN NOT NULL DEFAULT FALSE,
    processed_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_boundary_events_due ON boundary_events (processed, end_time);
`

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

func toInt64s(in []int) pq.Int64Array {
	out := make(pq.Int64Array, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func toInts(in pq.Int64Array) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
