// internal/app/swipe_service.go
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"mentor_match/internal/domain/matching"
)

var ErrInvalidDirection = errors.New("swipe direction must be REJECT or DESIRE")

// SwipeService records swipes against the per-round budget and surfaces candidates.
type SwipeService struct {
	participants matching.ParticipantRepository
	cycles       matching.CycleRepository
	logger       *logrus.Entry
}

func NewSwipeService(pr matching.ParticipantRepository, cr matching.CycleRepository, logger *logrus.Entry) *SwipeService {
	return &SwipeService{
		participants: pr,
		cycles:       cr,
		logger:       logger,
	}
}

// Record stores one swipe of participantID on counterpartID in the cycle's current round.
// Input errors (duplicate, budget, unknown counterpart, closed cycle) leave state untouched.
func (s *SwipeService) Record(ctx context.Context, dir matching.Direction, participantID, counterpartID, cycleID string) (*matching.Swipe, error) {
	logCtx := s.logger.WithFields(logrus.Fields{
		"participant_id": participantID,
		"counterpart_id": counterpartID,
		"cycle_id":       cycleID,
		"direction":      dir,
	})

	swipe, err := s.record(ctx, dir, participantID, counterpartID, cycleID)
	switch {
	case err == nil:
		swipesRecorded.WithLabelValues("accepted").Inc()
		logCtx.WithField("round", swipe.Round).Debug("Swipe recorded")
	case errors.Is(err, matching.ErrDuplicateSwipe):
		swipesRecorded.WithLabelValues("duplicate").Inc()
		logCtx.Info("Duplicate swipe rejected")
	case errors.Is(err, matching.ErrBudgetExceeded):
		swipesRecorded.WithLabelValues("budget_exceeded").Inc()
		logCtx.Info("Swipe over budget rejected")
	default:
		swipesRecorded.WithLabelValues("rejected").Inc()
		logCtx.WithError(err).Warn("Swipe rejected")
	}
	return swipe, err
}

func (s *SwipeService) record(ctx context.Context, dir matching.Direction, participantID, counterpartID, cycleID string) (*matching.Swipe, error) {
	if !dir.Valid() {
		return nil, ErrInvalidDirection
	}

	p, cycle, err := s.participantInCycle(ctx, participantID, cycleID)
	if err != nil {
		return nil, err
	}

	counterpart, err := s.participants.GetByID(ctx, counterpartID)
	if err != nil {
		if errors.Is(err, matching.ErrParticipantNotFound) {
			return nil, matching.ErrUnknownCounterpart
		}
		return nil, fmt.Errorf("failed to load counterpart: %w", err)
	}
	if counterpart.CycleID != cycle.ID || counterpart.Role != p.Role.Opposite() {
		return nil, matching.ErrUnknownCounterpart
	}

	swipe := &matching.Swipe{
		ParticipantID: p.ID,
		CounterpartID: counterpart.ID,
		CycleID:       cycle.ID,
		Round:         cycle.CurrentRound,
		Direction:     dir,
	}
	if err := s.participants.RecordSwipe(ctx, swipe, cycle.BudgetFor(cycle.CurrentRound)); err != nil {
		return nil, err
	}
	return swipe, nil
}

// Candidates lists opposite-role participants not yet swiped on in the current round.
func (s *SwipeService) Candidates(ctx context.Context, participantID string, limit int) ([]*matching.Participant, error) {
	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	cycle, err := s.openCycle(ctx, p.CycleID)
	if err != nil {
		return nil, err
	}

	rec, err := s.participants.RoundRecord(ctx, p.ID, cycle.CurrentRound)
	if err != nil {
		return nil, fmt.Errorf("failed to load round record: %w", err)
	}
	others, err := s.participants.ListByCycleAndRole(ctx, cycle.ID, p.Role.Opposite())
	if err != nil {
		return nil, fmt.Errorf("failed to list counterparts: %w", err)
	}

	candidates := make([]*matching.Participant, 0, len(others))
	for _, o := range others {
		if rec.Contains(o.ID) {
			continue
		}
		candidates = append(candidates, o)
		if limit > 0 && len(candidates) == limit {
			break
		}
	}
	return candidates, nil
}

// Remaining returns how many swipes the participant has left in the current round.
func (s *SwipeService) Remaining(ctx context.Context, participantID string) (int, error) {
	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		return 0, err
	}
	cycle, err := s.cycles.GetCycle(ctx, p.CycleID)
	if err != nil {
		return 0, err
	}
	if cycle.IsFinalized() {
		return 0, nil
	}
	rec, err := s.participants.RoundRecord(ctx, p.ID, cycle.CurrentRound)
	if err != nil {
		return 0, fmt.Errorf("failed to load round record: %w", err)
	}
	left := cycle.BudgetFor(cycle.CurrentRound) - rec.Size()
	if left < 0 {
		left = 0
	}
	return left, nil
}

// ShowNext picks the next candidate for the participant and remembers it as the one on screen.
func (s *SwipeService) ShowNext(ctx context.Context, participantID string) (*matching.Participant, error) {
	left, err := s.Remaining(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if left == 0 {
		return nil, matching.ErrBudgetExceeded
	}

	candidates, err := s.Candidates(ctx, participantID, 1)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, matching.ErrNoCandidates
	}
	next := candidates[0]
	if err := s.participants.SetLastShown(ctx, participantID, next.ID); err != nil {
		return nil, fmt.Errorf("failed to remember shown candidate: %w", err)
	}
	return next, nil
}

// SwipeShown records a swipe on the candidate last returned by ShowNext.
func (s *SwipeService) SwipeShown(ctx context.Context, participantID string, dir matching.Direction) (*matching.Swipe, error) {
	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if !p.LastShownID.Valid {
		return nil, matching.ErrNothingShown
	}

	swipe, err := s.Record(ctx, dir, p.ID, p.LastShownID.String, p.CycleID)
	if err != nil && !errors.Is(err, matching.ErrDuplicateSwipe) {
		return nil, err
	}
	if clearErr := s.participants.SetLastShown(ctx, p.ID, ""); clearErr != nil {
		s.logger.WithError(clearErr).WithField("participant_id", p.ID).Warn("Failed to clear shown candidate")
	}
	return swipe, err
}

func (s *SwipeService) participantInCycle(ctx context.Context, participantID, cycleID string) (*matching.Participant, *matching.Cycle, error) {
	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		return nil, nil, err
	}
	if p.CycleID != cycleID {
		return nil, nil, fmt.Errorf("participant %s is not enrolled in cycle %s: %w", participantID, cycleID, matching.ErrParticipantNotFound)
	}
	cycle, err := s.openCycle(ctx, cycleID)
	if err != nil {
		return nil, nil, err
	}
	return p, cycle, nil
}

func (s *SwipeService) openCycle(ctx context.Context, cycleID string) (*matching.Cycle, error) {
	cycle, err := s.cycles.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.IsFinalized() {
		return nil, matching.ErrCycleClosed
	}
	return cycle, nil
}
