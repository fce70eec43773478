package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mentor_match/internal/infra/logger"
)

// runTick is the one-shot form of the scheduler job, meant for an external cron.
func runTick(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.TickTimeout)
	defer cancel()

	rt, err := newRuntime(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.cycleService.Tick(ctx)
	if err != nil {
		return err
	}
	logTickReport(logger.Component("tick"), report)
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d due boundary events failed", report.Failed, report.Due)
	}
	return nil
}
