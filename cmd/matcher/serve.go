package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mentor_match/internal/app"
	"mentor_match/internal/infra/httpapi"
	"mentor_match/internal/infra/logger"
	"mentor_match/internal/infra/scheduler"
	"mentor_match/internal/infra/telegram"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mainLogger := logger.Component("main")
	mainLogger.WithField("environment", cfg.Environment).Info("Mentor matching service starting...")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	rt, err := newRuntime(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	swipeService := app.NewSwipeService(rt.participants, rt.cycles, logger.Component("swipe_service"))
	queryService := app.NewQueryService(rt.participants, rt.cycles)

	matchScheduler := scheduler.NewMatchingScheduler(rt.cycleService, logger.Component("scheduler"), cfg.PollSpec, cfg.TickTimeout)
	if err := matchScheduler.Start(); err != nil {
		return err
	}
	defer matchScheduler.Stop()

	handlers := httpapi.NewHandlers(swipeService, queryService, logger.Component("http"), cfg.CandidatePageSize)
	server := httpapi.NewServer(cfg.HTTPAddr, handlers.Router())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if rt.bot != nil {
		adminService := app.NewAdminService(rt.participants, rt.cycles, cfg.AdminTelegramID)
		botLogger := logger.Component("telegram")
		telegram.RegisterBotCommands(gctx, rt.bot, cfg.AdminTelegramID, rt.participants, botLogger)
		telegram.RegisterParticipantHandlers(gctx, rt.bot, rt.participants, swipeService, queryService, botLogger)
		telegram.RegisterAdminHandlers(gctx, rt.bot, adminService, rt.cycleService, cfg.AdminTelegramID, botLogger)

		g.Go(func() error {
			mainLogger.Info("Telegram bot polling")
			rt.bot.Start()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		mainLogger.Info("Shutting down...")
		if rt.bot != nil {
			rt.bot.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	mainLogger.Info("Mentor matching service shut down gracefully")
	return nil
}
