package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"mentor_match/internal/domain/matching"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")
var ErrInvalidCycle = errors.New("invalid cycle settings")
var ErrInvalidEnrollment = errors.New("invalid enrollment")
var ErrInvalidWindow = errors.New("boundary event must end after it starts")

var adminValidate = validator.New()

// CycleSettings describes a new matching cycle.
type CycleSettings struct {
	Name         string `validate:"required,max=120"`
	RoundWeights []int  `validate:"omitempty,max=20,dive,gt=0"` // defaults to 1,3,5
	SwipeBudgets []int  `validate:"required,min=1,max=20,dive,gt=0"`
}

// Enrollment describes a participant joining a cycle.
type Enrollment struct {
	CycleID     string        `validate:"required"`
	TelegramID  int64         `validate:"gte=0"` // 0 when the participant does not use the bot
	DisplayName string        `validate:"required,max=80"`
	Role        matching.Role `validate:"required,oneof=SPONSOR APPLICANT"`
	MaxSlots    int           `validate:"gte=0,lte=50"`
}

type AdminService struct {
	participantRepo matching.ParticipantRepository
	cycleRepo       matching.CycleRepository
	adminTelegramID int64
}

func NewAdminService(pr matching.ParticipantRepository, cr matching.CycleRepository, adminID int64) *AdminService {
	return &AdminService{
		participantRepo: pr,
		cycleRepo:       cr,
		adminTelegramID: adminID,
	}
}

// CreateCycle opens a new matching cycle at round 0.
func (s *AdminService) CreateCycle(ctx context.Context, performingAdminID int64, settings CycleSettings) (*matching.Cycle, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	if err := adminValidate.Struct(settings); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCycle, err)
	}

	weights := settings.RoundWeights
	if len(weights) == 0 {
		weights = slices.Clone(matching.DefaultRoundWeights)
	}
	if len(weights) != len(settings.SwipeBudgets) {
		return nil, fmt.Errorf("%w: %d round weights but %d swipe budgets", ErrInvalidCycle, len(weights), len(settings.SwipeBudgets))
	}

	cycle := &matching.Cycle{
		ID:           uuid.NewString(),
		Name:         settings.Name,
		RoundWeights: weights,
		SwipeBudgets: settings.SwipeBudgets,
	}
	if err := s.cycleRepo.CreateCycle(ctx, cycle); err != nil {
		return nil, fmt.Errorf("failed to create cycle in repository: %w", err)
	}
	return cycle, nil
}

// EnrollParticipant adds a sponsor or applicant to an open cycle.
func (s *AdminService) EnrollParticipant(ctx context.Context, performingAdminID int64, e Enrollment) (*matching.Participant, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	if err := adminValidate.Struct(e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnrollment, err)
	}

	cycle, err := s.cycleRepo.GetCycle(ctx, e.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle.IsFinalized() {
		return nil, matching.ErrCycleClosed
	}

	slots := e.MaxSlots
	if e.Role == matching.RoleApplicant || slots < 1 {
		slots = 1 // Applicants always hold one slot; sponsors default to one
	}

	p := &matching.Participant{
		ID:          uuid.NewString(),
		CycleID:     cycle.ID,
		DisplayName: e.DisplayName,
		Role:        e.Role,
		MaxSlots:    slots,
	}
	if e.TelegramID != 0 {
		p.TelegramID = sql.NullInt64{Int64: e.TelegramID, Valid: true}
	}
	if err := s.participantRepo.Create(ctx, p); err != nil {
		if errors.Is(err, matching.ErrDuplicateTelegramID) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create participant in repository: %w", err)
	}
	return p, nil
}

// ScheduleBoundary creates the event that closes the cycle's current window at end.
func (s *AdminService) ScheduleBoundary(ctx context.Context, performingAdminID int64, cycleID string, start, end time.Time) (*matching.BoundaryEvent, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	if !end.After(start) {
		return nil, ErrInvalidWindow
	}

	cycle, err := s.cycleRepo.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.IsFinalized() {
		return nil, matching.ErrCycleClosed
	}

	ev := &matching.BoundaryEvent{
		ID:        uuid.NewString(),
		CycleID:   cycle.ID,
		StartTime: start,
		EndTime:   end,
	}
	if err := s.cycleRepo.CreateEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to create boundary event in repository: %w", err)
	}
	return ev, nil
}

// GetCycle returns a cycle for admin inspection.
func (s *AdminService) GetCycle(ctx context.Context, performingAdminID int64, cycleID string) (*matching.Cycle, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	return s.cycleRepo.GetCycle(ctx, cycleID)
}
