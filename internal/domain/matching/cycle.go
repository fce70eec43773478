// internal/domain/matching/cycle.go
package matching

import (
	"database/sql"
	"time"
)

// DefaultRoundWeights is used when a cycle is created without explicit weights.
var DefaultRoundWeights = []int{1, 3, 5}

// Cycle is one organizing group's multi-round matching process.
// Corresponds to the 'cycles' table.
type Cycle struct {
	ID           string
	Name         string
	RoundWeights []int // Importance of each round, len = number of rounds
	SwipeBudgets []int // Swipes allowed per participant per round, same length
	CurrentRound int   // 0-based
	IsMatching   bool  // Display/gating flag, refreshed by the scheduler
	Unmatched    []string
	FinalizedAt  sql.NullTime
	CreatedAt    time.Time
}

func (c *Cycle) Rounds() int {
	return len(c.RoundWeights)
}

// IsFinalRound reports whether the current round is the last one.
func (c *Cycle) IsFinalRound() bool {
	return c.CurrentRound >= len(c.RoundWeights)-1
}

func (c *Cycle) IsFinalized() bool {
	return c.FinalizedAt.Valid
}

// BudgetFor returns the swipe budget of a round, or 0 for an unknown round.
func (c *Cycle) BudgetFor(round int) int {
	if round < 0 || round >= len(c.SwipeBudgets) {
		return 0
	}
	return c.SwipeBudgets[round]
}

// BoundaryEvent triggers a round advance or the finalization of its cycle once EndTime passes.
// Processed flips exactly once. Corresponds to the 'boundary_events' table.
type BoundaryEvent struct {
	ID          string
	CycleID     string
	StartTime   time.Time
	EndTime     time.Time
	Processed   bool
	ProcessedAt sql.NullTime
	CreatedAt   time.Time
}

// Window reports whether now falls inside the event's matching window.
func (e *BoundaryEvent) Window(now time.Time) bool {
	return !now.Before(e.StartTime) && !now.After(e.EndTime)
}
