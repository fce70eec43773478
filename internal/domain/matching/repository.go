// internal/domain/matching/repository.go
package matching

import (
	"context"
	"errors"
	"time"
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrCycleNotFound       = errors.New("matching cycle not found")
	ErrEventNotFound       = errors.New("boundary event not found")
	ErrEventAlreadyClaimed = errors.New("boundary event already processed or claimed")
	ErrDuplicateSwipe      = errors.New("counterpart already swiped this round")
	ErrBudgetExceeded      = errors.New("swipe budget for this round exhausted")
	ErrUnknownCounterpart  = errors.New("counterpart is not an opposite-role participant of this cycle")
	ErrCycleClosed         = errors.New("matching cycle is finalized")
	ErrDuplicateTelegramID = errors.New("telegram user already enrolled in this cycle")
	ErrNoCandidates        = errors.New("no candidates left this round")
	ErrNothingShown        = errors.New("no candidate is currently shown")
)

// ParticipantRepository persists participants and their round records outside of finalization.
type ParticipantRepository interface {
	Create(ctx context.Context, p *Participant) error
	GetByID(ctx context.Context, id string) (*Participant, error)
	// GetByTelegramID returns the most recently enrolled participant for the Telegram user.
	GetByTelegramID(ctx context.Context, telegramID int64) (*Participant, error)
	// ListByCycleAndRole returns participants without their round records.
	ListByCycleAndRole(ctx context.Context, cycleID string, role Role) ([]*Participant, error)
	RoundRecord(ctx context.Context, participantID string, round int) (RoundRecord, error)
	// RecordSwipe appends the swipe unless it duplicates one of the round or the round already
	// holds budget swipes. Writes for the same participant are serialized.
	RecordSwipe(ctx context.Context, s *Swipe, budget int) error
	SetLastShown(ctx context.Context, participantID string, counterpartID string) error
}

// CycleRepository persists cycles and boundary events.
type CycleRepository interface {
	CreateCycle(ctx context.Context, c *Cycle) error
	GetCycle(ctx context.Context, id string) (*Cycle, error)
	CreateEvent(ctx context.Context, e *BoundaryEvent) error
	ListDueEvents(ctx context.Context, now time.Time) ([]*BoundaryEvent, error)
	// WithClaimedEvent claims an unprocessed event and runs fn inside one transaction.
	// Returns ErrEventAlreadyClaimed when the event is processed or held by another worker.
	// Any error from fn discards every write made through tx.
	WithClaimedEvent(ctx context.Context, eventID string, fn func(ctx context.Context, ev *BoundaryEvent, tx CycleTx) error) error
}

// CycleTx is the set of writes the scheduler performs while holding an event claim.
type CycleTx interface {
	GetCycle(ctx context.Context, id string) (*Cycle, error)
	SetMatchingActive(ctx context.Context, cycleID string, active bool) error
	// AdvanceRound increments the current round and clears per-round display state.
	AdvanceRound(ctx context.Context, cycleID string) error
	// LoadParticipants returns participants with their full round record history.
	LoadParticipants(ctx context.Context, cycleID string, role Role) ([]*Participant, error)
	SaveMatches(ctx context.Context, participantID string, matches []string) error
	CloseCycle(ctx context.Context, cycleID string, unmatched []string, at time.Time) error
	MarkEventProcessed(ctx context.Context, eventID string, at time.Time) error
}
