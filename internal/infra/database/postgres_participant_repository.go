package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"mentor_match/internal/domain/matching"
)

const participantColumns = `id, cycle_id, telegram_id, display_name, role, max_slots, matches, last_shown_id, created_at, updated_at`

type PostgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) *PostgresParticipantRepository {
	return &PostgresParticipantRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*matching.Participant, error) {
	p := &matching.Participant{}
	err := row.Scan(&p.ID, &p.CycleID, &p.TelegramID, &p.DisplayName, &p.Role, &p.MaxSlots,
		pq.Array(&p.Matches), &p.LastShownID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanParticipants(rows *sql.Rows) ([]*matching.Participant, error) {
	participants := make([]*matching.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning participant row: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}
	return participants, nil
}

func (r *PostgresParticipantRepository) Create(ctx context.Context, p *matching.Participant) error {
	query := `INSERT INTO participants (id, cycle_id, telegram_id, display_name, role, max_slots)
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, p.ID, p.CycleID, p.TelegramID, p.DisplayName, p.Role, p.MaxSlots).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return matching.ErrDuplicateTelegramID
		}
		return fmt.Errorf("error creating participant: %w", err)
	}
	return nil
}

func (r *PostgresParticipantRepository) GetByID(ctx context.Context, id string) (*matching.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`
	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, matching.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("error getting participant by ID: %w", err)
	}
	return p, nil
}

func (r *PostgresParticipantRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*matching.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants
               WHERE telegram_id = $1 ORDER BY created_at DESC LIMIT 1`
	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, matching.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("error getting participant by Telegram ID: %w", err)
	}
	return p, nil
}

func (r *PostgresParticipantRepository) ListByCycleAndRole(ctx context.Context, cycleID string, role matching.Role) ([]*matching.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants
               WHERE cycle_id = $1 AND role = $2 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, cycleID, role)
	if err != nil {
		return nil, fmt.Errorf("error listing participants by cycle and role: %w", err)
	}
	defer rows.Close()
	return scanParticipants(rows)
}

func (r *PostgresParticipantRepository) RoundRecord(ctx context.Context, participantID string, round int) (matching.RoundRecord, error) {
	query := `SELECT counterpart_id, direction FROM swipes
               WHERE participant_id = $1 AND round_index = $2 ORDER BY seq`
	rec := matching.RoundRecord{Round: round}

	rows, err := r.db.QueryContext(ctx, query, participantID, round)
	if err != nil {
		return rec, fmt.Errorf("error querying round record: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var counterpartID string
		var dir matching.Direction
		if err := rows.Scan(&counterpartID, &dir); err != nil {
			return rec, fmt.Errorf("error scanning swipe row: %w", err)
		}
		rec.Add(dir, counterpartID)
	}
	if err := rows.Err(); err != nil {
		return rec, fmt.Errorf("error iterating swipe rows: %w", err)
	}
	return rec, nil
}

// RecordSwipe locks the participant row so concurrent swipes of one participant see each
// other's inserts before the budget check.
func (r *PostgresParticipantRepository) RecordSwipe(ctx context.Context, s *matching.Swipe, budget int) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for swipe: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	var lockedID string
	err = txn.QueryRowContext(ctx, `SELECT id FROM participants WHERE id = $1 FOR UPDATE`, s.ParticipantID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return matching.ErrParticipantNotFound
		}
		return fmt.Errorf("error locking participant for swipe: %w", err)
	}

	var total, same int
	err = txn.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE counterpart_id = $3)
               FROM swipes WHERE participant_id = $1 AND round_index = $2`,
		s.ParticipantID, s.Round, s.CounterpartID).Scan(&total, &same)
	if err != nil {
		return fmt.Errorf("error counting round swipes: %w", err)
	}
	if same > 0 {
		return matching.ErrDuplicateSwipe
	}
	if total >= budget {
		return matching.ErrBudgetExceeded
	}

	err = txn.QueryRowContext(ctx, `INSERT INTO swipes (participant_id, cycle_id, round_index, counterpart_id, direction)
               VALUES ($1, $2, $3, $4, $5)
               RETURNING created_at`,
		s.ParticipantID, s.CycleID, s.Round, s.CounterpartID, s.Direction).Scan(&s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return matching.ErrDuplicateSwipe
		}
		return fmt.Errorf("error inserting swipe: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit swipe: %w", err)
	}
	return nil
}

func (r *PostgresParticipantRepository) SetLastShown(ctx context.Context, participantID string, counterpartID string) error {
	query := `UPDATE participants SET last_shown_id = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, participantID, counterpartID)
	if err != nil {
		return fmt.Errorf("error updating shown candidate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return matching.ErrParticipantNotFound
	}
	return nil
}
