// internal/app/query_service.go
package app

import (
	"context"
	"slices"

	"mentor_match/internal/domain/matching"
)

// MatchStatus is a participant's view of its assignment.
type MatchStatus struct {
	ParticipantID string        `json:"participant_id"`
	CycleID       string        `json:"cycle_id"`
	Role          matching.Role `json:"role"`
	Capacity      int           `json:"capacity"`
	Matches       []string      `json:"matches"`
	Finalized     bool          `json:"finalized"`
	Unmatched     bool          `json:"unmatched"` // only meaningful once finalized
}

// CycleStatus is the externally visible state of a matching cycle.
type CycleStatus struct {
	CycleID      string   `json:"cycle_id"`
	Name         string   `json:"name"`
	CurrentRound int      `json:"current_round"`
	Rounds       int      `json:"rounds"`
	IsMatching   bool     `json:"is_matching"`
	Finalized    bool     `json:"finalized"`
	Unmatched    []string `json:"unmatched,omitempty"`
}

// QueryService answers read-only questions about matches and cycles.
type QueryService struct {
	participants matching.ParticipantRepository
	cycles       matching.CycleRepository
}

func NewQueryService(pr matching.ParticipantRepository, cr matching.CycleRepository) *QueryService {
	return &QueryService{participants: pr, cycles: cr}
}

func (s *QueryService) MatchStatus(ctx context.Context, participantID string) (*MatchStatus, error) {
	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	cycle, err := s.cycles.GetCycle(ctx, p.CycleID)
	if err != nil {
		return nil, err
	}

	status := &MatchStatus{
		ParticipantID: p.ID,
		CycleID:       cycle.ID,
		Role:          p.Role,
		Capacity:      p.Capacity(),
		Matches:       []string{},
		Finalized:     cycle.IsFinalized(),
	}
	if status.Finalized {
		if p.Matches != nil {
			status.Matches = p.Matches
		}
		status.Unmatched = slices.Contains(cycle.Unmatched, p.ID)
	}
	return status, nil
}

func (s *QueryService) CycleStatus(ctx context.Context, cycleID string) (*CycleStatus, error) {
	cycle, err := s.cycles.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	return &CycleStatus{
		CycleID:      cycle.ID,
		Name:         cycle.Name,
		CurrentRound: cycle.CurrentRound,
		Rounds:       cycle.Rounds(),
		IsMatching:   cycle.IsMatching,
		Finalized:    cycle.IsFinalized(),
		Unmatched:    cycle.Unmatched,
	}, nil
}
