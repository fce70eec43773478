// internal/infra/database/postgres_cycle_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"mentor_match/internal/domain/matching"
)

const cycleColumns = `id, name, round_weights, swipe_budgets, current_round, is_matching, unmatched, finalized_at, created_at`

const eventColumns = `id, cycle_id, start_time, end_time, processed, processed_at, created_at`

type PostgresCycleRepository struct {
	db *sql.DB
}

func NewPostgresCycleRepository(db *sql.DB) *PostgresCycleRepository {
	return &PostgresCycleRepository{db: db}
}

func scanCycle(row rowScanner) (*matching.Cycle, error) {
	c := &matching.Cycle{}
	var weights, budgets pq.Int64Array
	err := row.Scan(&c.ID, &c.Name, &weights, &budgets, &c.CurrentRound, &c.IsMatching,
		pq.Array(&c.Unmatched), &c.FinalizedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.RoundWeights = toInts(weights)
	c.SwipeBudgets = toInts(budgets)
	return c, nil
}

func scanEvent(row rowScanner) (*matching.BoundaryEvent, error) {
	e := &matching.BoundaryEvent{}
	err := row.Scan(&e.ID, &e.CycleID, &e.StartTime, &e.EndTime, &e.Processed, &e.ProcessedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// --- Cycle Methods ---

func (r *PostgresCycleRepository) CreateCycle(ctx context.Context, c *matching.Cycle) error {
	query := `INSERT INTO cycles (id, name, round_weights, swipe_budgets)
               VALUES ($1, $2, $3, $4)
               RETURNING current_round, is_matching, created_at`
	err := r.db.QueryRowContext(ctx, query, c.ID, c.Name, toInt64s(c.RoundWeights), toInt64s(c.SwipeBudgets)).
		Scan(&c.CurrentRound, &c.IsMatching, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating cycle: %w", err)
	}
	return nil
}

func (r *PostgresCycleRepository) GetCycle(ctx context.Context, id string) (*matching.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE id = $1`
	c, err := scanCycle(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, matching.ErrCycleNotFound
		}
		return nil, fmt.Errorf("error getting cycle by ID: %w", err)
	}
	return c, nil
}

// --- BoundaryEvent Methods ---

func (r *PostgresCycleRepository) CreateEvent(ctx context.Context, e *matching.BoundaryEvent) error {
	query := `INSERT INTO boundary_events (id, cycle_id, start_time, end_time)
               VALUES ($1, $2, $3, $4)
               RETURNING processed, created_at`
	err := r.db.QueryRowContext(ctx, query, e.ID, e.CycleID, e.StartTime, e.EndTime).Scan(&e.Processed, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating boundary event: %w", err)
	}
	return nil
}

func (r *PostgresCycleRepository) ListDueEvents(ctx context.Context, now time.Time) ([]*matching.BoundaryEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM boundary_events
               WHERE processed = FALSE AND end_time <= $1
               ORDER BY end_time, id`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("error querying due boundary events: %w", err)
	}
	defer rows.Close()

	events := make([]*matching.BoundaryEvent, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning boundary event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating boundary event rows: %w", err)
	}
	return events, nil
}

// WithClaimedEvent row-locks the unprocessed event with SKIP LOCKED, so a second worker sees
// no row and gets ErrEventAlreadyClaimed. Unknown event IDs report the same error.
func (r *PostgresCycleRepository) WithClaimedEvent(ctx context.Context, eventID string, fn func(ctx context.Context, ev *matching.BoundaryEvent, tx matching.CycleTx) error) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for boundary event: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	query := `SELECT ` + eventColumns + ` FROM boundary_events
               WHERE id = $1 AND processed = FALSE
               FOR UPDATE SKIP LOCKED`
	ev, err := scanEvent(txn.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return matching.ErrEventAlreadyClaimed
		}
		return fmt.Errorf("error claiming boundary event: %w", err)
	}

	if err := fn(ctx, ev, &pgCycleTx{tx: txn}); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit boundary event: %w", err)
	}
	return nil
}

// pgCycleTx implements matching.CycleTx on an open transaction.
type pgCycleTx struct {
	tx *sql.Tx
}

func (t *pgCycleTx) GetCycle(ctx context.Context, id string) (*matching.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE id = $1 FOR UPDATE`
	c, err := scanCycle(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, matching.ErrCycleNotFound
		}
		return nil, fmt.Errorf("error locking cycle: %w", err)
	}
	return c, nil
}

func (t *pgCycleTx) SetMatchingActive(ctx context.Context, cycleID string, active bool) error {
	return t.execOne(ctx, `UPDATE cycles SET is_matching = $2 WHERE id = $1`, matching.ErrCycleNotFound, cycleID, active)
}

func (t *pgCycleTx) AdvanceRound(ctx context.Context, cycleID string) error {
	if err := t.execOne(ctx, `UPDATE cycles SET current_round = current_round + 1 WHERE id = $1`, matching.ErrCycleNotFound, cycleID); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `UPDATE participants SET last_shown_id = NULL, updated_at = NOW()
               WHERE cycle_id = $1 AND last_shown_id IS NOT NULL`, cycleID)
	if err != nil {
		return fmt.Errorf("error clearing shown candidates: %w", err)
	}
	return nil
}

func (t *pgCycleTx) LoadParticipants(ctx context.Context, cycleID string, role matching.Role) ([]*matching.Participant, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+participantColumns+` FROM participants
               WHERE cycle_id = $1 AND role = $2 ORDER BY created_at, id`, cycleID, role)
	if err != nil {
		return nil, fmt.Errorf("error loading participants: %w", err)
	}
	participants, err := scanParticipants(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*matching.Participant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
	}

	swipeRows, err := t.tx.QueryContext(ctx, `SELECT s.participant_id, s.round_index, s.counterpart_id, s.direction
               FROM swipes s JOIN participants p ON p.id = s.participant_id
               WHERE s.cycle_id = $1 AND p.role = $2
               ORDER BY s.participant_id, s.round_index, s.seq`, cycleID, role)
	if err != nil {
		return nil, fmt.Errorf("error loading round records: %w", err)
	}
	defer swipeRows.Close()

	for swipeRows.Next() {
		var participantID, counterpartID string
		var round int
		var dir matching.Direction
		if err := swipeRows.Scan(&participantID, &round, &counterpartID, &dir); err != nil {
			return nil, fmt.Errorf("error scanning swipe row: %w", err)
		}
		p, ok := byID[participantID]
		if !ok {
			continue
		}
		if n := len(p.Rounds); n == 0 || p.Rounds[n-1].Round != round {
			p.Rounds = append(p.Rounds, matching.RoundRecord{Round: round})
		}
		p.Rounds[len(p.Rounds)-1].Add(dir, counterpartID)
	}
	if err := swipeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating swipe rows: %w", err)
	}
	return participants, nil
}

func (t *pgCycleTx) SaveMatches(ctx context.Context, participantID string, matches []string) error {
	return t.execOne(ctx, `UPDATE participants SET matches = $2, updated_at = NOW() WHERE id = $1`,
		matching.ErrParticipantNotFound, participantID, pq.Array(matches))
}

func (t *pgCycleTx) CloseCycle(ctx context.Context, cycleID string, unmatched []string, at time.Time) error {
	return t.execOne(ctx, `UPDATE cycles SET unmatched = $2, finalized_at = $3 WHERE id = $1`,
		matching.ErrCycleNotFound, cycleID, pq.Array(unmatched), at)
}

func (t *pgCycleTx) MarkEventProcessed(ctx context.Context, eventID string, at time.Time) error {
	return t.execOne(ctx, `UPDATE boundary_events SET processed = TRUE, processed_at = $2 WHERE id = $1`,
		matching.ErrEventNotFound, eventID, at)
}

// execOne runs an update that must touch exactly one row.
func (t *pgCycleTx) execOne(ctx context.Context, query string, notFound error, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error executing update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
