package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"mentor_match/internal/app"
)

// Ticker processes due boundary events once. *app.CycleService implements it.
type Ticker interface {
	Tick(ctx context.Context) (*app.TickReport, error)
}

type MatchingScheduler struct {
	cronEngine  *cron.Cron
	ticker      Ticker
	logger      *logrus.Entry
	pollSpec    string // e.g. "@every 1m"
	tickTimeout time.Duration
	running     sync.Mutex // held while a tick runs
}

func NewMatchingScheduler(ticker Ticker, logger *logrus.Entry, pollSpec string, tickTimeout time.Duration) *MatchingScheduler {
	return &MatchingScheduler{
		cronEngine:  cron.New(cron.WithLocation(time.UTC)),
		ticker:      ticker,
		logger:      logger,
		pollSpec:    pollSpec,
		tickTimeout: tickTimeout,
	}
}

func (s *MatchingScheduler) Start() error {
	s.logger.WithField("poll_spec", s.pollSpec).Info("Starting matching scheduler...")

	_, err := s.cronEngine.AddFunc(s.pollSpec, s.runTick)
	if err != nil {
		return fmt.Errorf("could not add boundary event poll job: %w", err)
	}

	s.cronEngine.Start()
	s.logger.Info("Matching scheduler started.")
	return nil
}

// runTick skips the firing when the previous tick is still running; the next one picks up
// whatever is still due.
func (s *MatchingScheduler) runTick() {
	if !s.running.TryLock() {
		s.logger.Warn("Previous tick still running; skipping this one")
		return
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.tickTimeout)
	defer cancel()

	report, err := s.ticker.Tick(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduler tick failed")
		return
	}
	if report.Failed > 0 {
		s.logger.WithFields(logrus.Fields{"due": report.Due, "failed": report.Failed}).Warn("Some boundary events failed; they stay due")
	}
}

func (s *MatchingScheduler) Stop() {
	s.logger.Info("Stopping matching scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Matching scheduler gracefully stopped.")
}
