// internal/app/cycle_service.go
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"mentor_match/internal/domain/matching"
	"mentor_match/internal/engine"
)

// Outcome is what processing one boundary event did.
type Outcome string

const (
	OutcomeAdvanced  Outcome = "advanced"  // cycle moved to its next round
	OutcomeFinalized Outcome = "finalized" // matching ran and results were committed
	OutcomeClosed    Outcome = "closed"    // cycle was already finalized, event consumed
	OutcomeSkipped   Outcome = "skipped"   // event processed or claimed by another worker
	OutcomeFailed    Outcome = "failed"    // nothing committed, retried next tick
	OutcomeDryRun    Outcome = "dry_run"   // computed and rolled back
)

// errDryRun aborts the claim transaction after a dry run computed everything.
var errDryRun = errors.New("dry run: rolling back")

// TickReport summarizes one scheduler tick.
type TickReport struct {
	Due      int
	Outcomes map[string]Outcome // by event ID
	Failed   int
}

// Finalization is the committed result of matching one cycle.
type Finalization struct {
	Cycle       *matching.Cycle
	Sponsors    []*matching.Participant
	Applicants  []*matching.Participant
	Unmatched   []string
	FinalizedAt time.Time
	Passes      int
	Proposals   int
}

// FinalizationNotifier announces committed finalizations. Failures are logged, never retried.
type FinalizationNotifier interface {
	NotifyFinalized(ctx context.Context, f *Finalization) error
}

// CycleService owns cycle state transitions: it advances rounds and runs finalization
// when a cycle's last round has ended.
type CycleService struct {
	cycles    matching.CycleRepository
	notifiers []FinalizationNotifier
	logger    *logrus.Entry
	dryRun    bool
	now       func() time.Time
}

func NewCycleService(cr matching.CycleRepository, logger *logrus.Entry, dryRun bool, notifiers ...FinalizationNotifier) *CycleService {
	return &CycleService{
		cycles:    cr,
		notifiers: notifiers,
		logger:    logger,
		dryRun:    dryRun,
		now:       time.Now,
	}
}

// Tick processes every due, unprocessed boundary event. A failing event is logged and left
// for the next tick; it never stops the others.
func (s *CycleService) Tick(ctx context.Context) (*TickReport, error) {
	now := s.now()
	events, err := s.cycles.ListDueEvents(ctx, now)
	if err != nil {
		schedulerTicks.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to list due boundary events: %w", err)
	}

	report := &TickReport{Due: len(events), Outcomes: make(map[string]Outcome, len(events))}
	for _, ev := range events {
		logCtx := s.logger.WithFields(logrus.Fields{"event_id": ev.ID, "cycle_id": ev.CycleID})

		outcome, err := s.ProcessEvent(ctx, ev.ID)
		report.Outcomes[ev.ID] = outcome
		boundaryEvents.WithLabelValues(string(outcome)).Inc()
		if err != nil {
			report.Failed++
			logCtx.WithError(err).Error("Boundary event processing failed; will retry next tick")
			continue
		}
		logCtx.WithField("outcome", outcome).Info("Boundary event handled")
	}

	schedulerTicks.WithLabelValues("ok").Inc()
	if report.Due > 0 {
		s.logger.WithFields(logrus.Fields{"due": report.Due, "failed": report.Failed}).Info("Scheduler tick complete")
	}
	return report, nil
}

// ProcessEvent claims one boundary event and applies it to its cycle. Every write, including
// the processed flag, commits together or not at all.
func (s *CycleService) ProcessEvent(ctx context.Context, eventID string) (Outcome, error) {
	now := s.now()
	outcome := OutcomeFailed
	var fin *Finalization

	err := s.cycles.WithClaimedEvent(ctx, eventID, func(ctx context.Context, ev *matching.BoundaryEvent, tx matching.CycleTx) error {
		cycle, err := tx.GetCycle(ctx, ev.CycleID)
		if err != nil {
			return fmt.Errorf("failed to load cycle %s: %w", ev.CycleID, err)
		}

		if active := ev.Window(now); active != cycle.IsMatching {
			if err := tx.SetMatchingActive(ctx, cycle.ID, active); err != nil {
				return fmt.Errorf("failed to set matching flag: %w", err)
			}
			cycle.IsMatching = active
		}

		switch {
		case cycle.IsFinalized():
			outcome = OutcomeClosed
		case !cycle.IsFinalRound():
			if err := tx.AdvanceRound(ctx, cycle.ID); err != nil {
				return fmt.Errorf("failed to advance round: %w", err)
			}
			outcome = OutcomeAdvanced
		default:
			fin, err = s.finalize(ctx, tx, cycle, now)
			if err != nil {
				return err
			}
			outcome = OutcomeFinalized
		}

		if err := tx.MarkEventProcessed(ctx, ev.ID, now); err != nil {
			return fmt.Errorf("failed to mark event processed: %w", err)
		}
		if s.dryRun {
			return errDryRun
		}
		return nil
	})

	switch {
	case errors.Is(err, errDryRun):
		s.logger.WithFields(logrus.Fields{"event_id": eventID, "would": outcome}).Info("Dry run: changes rolled back")
		return OutcomeDryRun, nil
	case errors.Is(err, matching.ErrEventAlreadyClaimed):
		return OutcomeSkipped, nil
	case err != nil:
		return OutcomeFailed, err
	}

	if fin != nil {
		s.notify(ctx, fin)
	}
	return outcome, nil
}

func (s *CycleService) finalize(ctx context.Context, tx matching.CycleTx, cycle *matching.Cycle, now time.Time) (*Finalization, error) {
	start := time.Now()
	logCtx := s.logger.WithField("cycle_id", cycle.ID)

	sponsors, err := tx.LoadParticipants(ctx, cycle.ID, matching.RoleSponsor)
	if err != nil {
		return nil, fmt.Errorf("failed to load sponsors: %w", err)
	}
	applicants, err := tx.LoadParticipants(ctx, cycle.ID, matching.RoleApplicant)
	if err != nil {
		return nil, fmt.Errorf("failed to load applicants: %w", err)
	}
	if len(sponsors) == 0 || len(applicants) == 0 {
		logCtx.WithFields(logrus.Fields{"sponsors": len(sponsors), "applicants": len(applicants)}).
			Warn("One side of the cycle is empty; finalizing with everyone unmatched")
	}

	all := make([]*matching.Participant, 0, len(sponsors)+len(applicants))
	all = append(all, sponsors...)
	all = append(all, applicants...)
	prefs, err := buildPreferences(ctx, cycle, all)
	if err != nil {
		return nil, fmt.Errorf("failed to build preferences: %w", err)
	}

	sponsorInput := make([]engine.Sponsor, len(sponsors))
	for i, p := range sponsors {
		sponsorInput[i] = engine.Sponsor{ID: p.ID, MaxSlots: p.Capacity(), Preferences: prefs[i]}
	}
	applicantInput := make([]engine.Applicant, len(applicants))
	for i, p := range applicants {
		applicantInput[i] = engine.Applicant{ID: p.ID, Preferences: prefs[len(sponsors)+i]}
	}

	res := engine.Solve(sponsorInput, applicantInput)

	for _, p := range sponsors {
		p.Matches = res.Assignments[p.ID]
		if err := tx.SaveMatches(ctx, p.ID, p.Matches); err != nil {
			return nil, fmt.Errorf("failed to save matches for sponsor %s: %w", p.ID, err)
		}
	}
	for _, p := range applicants {
		p.Matches = nil
		if sponsorID, ok := res.Matches[p.ID]; ok {
			p.Matches = []string{sponsorID}
		}
		if err := tx.SaveMatches(ctx, p.ID, p.Matches); err != nil {
			return nil, fmt.Errorf("failed to save matches for applicant %s: %w", p.ID, err)
		}
	}

	unmatched := make([]string, 0, len(res.UnmatchedApplicants)+len(res.UnmatchedSponsors))
	unmatched = append(unmatched, res.UnmatchedApplicants...)
	unmatched = append(unmatched, res.UnmatchedSponsors...)
	if err := tx.CloseCycle(ctx, cycle.ID, unmatched, now); err != nil {
		return nil, fmt.Errorf("failed to close cycle: %w", err)
	}
	cycle.Unmatched = unmatched
	cycle.FinalizedAt = sql.NullTime{Time: now, Valid: true}

	finalizeDuration.Observe(time.Since(start).Seconds())
	unmatchedParticipants.WithLabelValues(string(matching.RoleApplicant)).Set(float64(len(res.UnmatchedApplicants)))
	unmatchedParticipants.WithLabelValues(string(matching.RoleSponsor)).Set(float64(len(res.UnmatchedSponsors)))
	logCtx.WithFields(logrus.Fields{
		"sponsors":             len(sponsors),
		"applicants":           len(applicants),
		"passes":               res.Passes,
		"proposals":            res.Proposals,
		"unmatched_applicants": len(res.UnmatchedApplicants),
		"unmatched_sponsors":   len(res.UnmatchedSponsors),
	}).Info("Matching computed")

	return &Finalization{
		Cycle:       cycle,
		Sponsors:    sponsors,
		Applicants:  applicants,
		Unmatched:   unmatched,
		FinalizedAt: now,
		Passes:      res.Passes,
		Proposals:   res.Proposals,
	}, nil
}

// buildPreferences runs the accumulator for every participant. Output is indexed like all.
func buildPreferences(ctx context.Context, cycle *matching.Cycle, all []*matching.Participant) ([][]string, error) {
	roster := make(map[string]matching.Role, len(all))
	for _, p := range all {
		roster[p.ID] = p.Role
	}

	out := make([][]string, len(all))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range all {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out[i] = engine.Preferences(p.Rounds, cycle.RoundWeights, p.Role.Opposite(), roster)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *CycleService) notify(ctx context.Context, fin *Finalization) {
	if len(s.notifiers) == 0 {
		return
	}
	var g errgroup.Group
	for _, n := range s.notifiers {
		g.Go(func() error {
			if err := n.NotifyFinalized(ctx, fin); err != nil {
				s.logger.WithError(err).WithField("cycle_id", fin.Cycle.ID).Warn("Finalization notifier failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}
