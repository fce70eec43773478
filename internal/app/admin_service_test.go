package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentor_match/internal/domain/matching"
)

const testAdminID int64 = 1001

func TestAdminService_RequiresAdmin(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewAdminService(store, store, testAdminID)

	_, err := svc.CreateCycle(ctx, 42, CycleSettings{Name: "x", SwipeBudgets: []int{1, 1, 1}})
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	_, err = svc.EnrollParticipant(ctx, 42, Enrollment{})
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	_, err = svc.ScheduleBoundary(ctx, 42, "c1", tickNow, tickNow.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	_, err = svc.GetCycle(ctx, 42, "c1")
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	assert.Empty(t, store.cycles)
}

func TestAdminService_CreateCycle(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewAdminService(store, store, testAdminID)

	cycle, err := svc.CreateCycle(ctx, testAdminID, CycleSettings{Name: "autumn", SwipeBudgets: []int{10, 8, 5}})
	require.NoError(t, err)
	assert.NotEmpty(t, cycle.ID)
	assert.Equal(t, []int{1, 3, 5}, cycle.RoundWeights)
	assert.Equal(t, 0, cycle.CurrentRound)
	assert.Contains(t, store.cycles, cycle.ID)

	// Defaults are copied, not shared.
	cycle.RoundWeights[0] = 99
	assert.Equal(t, []int{1, 3, 5}, matching.DefaultRoundWeights)

	tests := []struct {
		name     string
		settings CycleSettings
	}{
		{"missing name", CycleSettings{SwipeBudgets: []int{1}}},
		{"no budgets", CycleSettings{Name: "x"}},
		{"zero budget", CycleSettings{Name: "x", SwipeBudgets: []int{0, 1, 1}}},
		{"negative weight", CycleSettings{Name: "x", RoundWeights: []int{-1}, SwipeBudgets: []int{1}}},
		{"length mismatch", CycleSettings{Name: "x", RoundWeights: []int{1, 2}, SwipeBudgets: []int{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateCycle(ctx, testAdminID, tt.settings)
			assert.ErrorIs(t, err, ErrInvalidCycle)
		})
	}
}

func TestAdminService_EnrollParticipant(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addCycle(&matching.Cycle{ID: "c1", RoundWeights: []int{1}, SwipeBudgets: []int{3}})
	svc := NewAdminService(store, store, testAdminID)

	sponsor, err := svc.EnrollParticipant(ctx, testAdminID, Enrollment{
		CycleID: "c1", TelegramID: 555, DisplayName: "Dr. Lee", Role: matching.RoleSponsor, MaxSlots: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sponsor.MaxSlots)
	assert.True(t, sponsor.TelegramID.Valid)

	applicant, err := svc.EnrollParticipant(ctx, testAdminID, Enrollment{
		CycleID: "c1", DisplayName: "Sam", Role: matching.RoleApplicant, MaxSlots: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, applicant.MaxSlots)
	assert.False(t, applicant.TelegramID.Valid)

	defaulted, err := svc.EnrollParticipant(ctx, testAdminID, Enrollment{
		CycleID: "c1", DisplayName: "Ops", Role: matching.RoleSponsor,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, defaulted.MaxSlots)

	_, err = svc.EnrollParticipant(ctx, testAdminID, Enrollment{
		CycleID: "c1", TelegramID: 555, DisplayName: "Again", Role: matching.RoleApplicant,
	})
	assert.ErrorIs(t, err, matching.ErrDuplicateTelegramID)

	_, err = svc.EnrollParticipant(ctx, testAdminID, Enrollment{CycleID: "c1", DisplayName: "x", Role: "MENTOR"})
	assert.ErrorIs(t, err, ErrInvalidEnrollment)

	_, err = svc.EnrollParticipant(ctx, testAdminID, Enrollment{CycleID: "nope", DisplayName: "x", Role: matching.RoleSponsor})
	assert.ErrorIs(t, err, matching.ErrCycleNotFound)

	store.cycles["c1"].FinalizedAt.Valid = true
	_, err = svc.EnrollParticipant(ctx, testAdminID, Enrollment{CycleID: "c1", DisplayName: "Late", Role: matching.RoleApplicant})
	assert.ErrorIs(t, err, matching.ErrCycleClosed)
}

func TestAdminService_ScheduleBoundary(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addCycle(&matching.Cycle{ID: "c1", RoundWeights: []int{1}, SwipeBudgets: []int{3}})
	svc := NewAdminService(store, store, testAdminID)

	ev, err := svc.ScheduleBoundary(ctx, testAdminID, "c1", tickNow, tickNow.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "c1", ev.CycleID)
	assert.False(t, ev.Processed)
	assert.Contains(t, store.events, ev.ID)

	_, err = svc.ScheduleBoundary(ctx, testAdminID, "c1", tickNow, tickNow)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = svc.ScheduleBoundary(ctx, testAdminID, "missing", tickNow, tickNow.Add(time.Hour))
	assert.ErrorIs(t, err, matching.ErrCycleNotFound)
}
