// internal/app/metrics.go
package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// schedulerTicks counts scheduler ticks by result (ok, error)
	schedulerTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_scheduler_ticks_total",
		Help: "Scheduler ticks by result",
	}, []string{"result"})

	// boundaryEvents counts processed boundary events by outcome
	boundaryEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_boundary_events_total",
		Help: "Boundary events handled by outcome",
	}, []string{"outcome"})

	finalizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matching_finalize_duration_seconds",
		Help:    "Time spent computing and committing a finalization",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	})

	// unmatchedParticipants tracks the unmatched count of the last finalization per role
	unmatchedParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matching_last_unmatched_participants",
		Help: "Unmatched participants in the most recent finalization",
	}, []string{"role"})

	swipesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_swipes_total",
		Help: "Swipe submissions by result",
	}, []string{"result"})
)
