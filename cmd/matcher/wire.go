package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"mentor_match/internal/app"
	"mentor_match/internal/infra/config"
	idb "mentor_match/internal/infra/database"
	"mentor_match/internal/infra/events"
	"mentor_match/internal/infra/logger"
	"mentor_match/internal/infra/telegram"
)

// runtime holds everything both commands build from configuration.
type runtime struct {
	cfg          *config.AppConfig
	db           *sql.DB
	redis        *redis.Client
	bot          *telebot.Bot
	participants *idb.PostgresParticipantRepository
	cycles       *idb.PostgresCycleRepository
	cycleService *app.CycleService
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	if dryRun {
		cfg.DryRun = true
	}
	cfg.ApplyInterval(pollInterval)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Init(cfg)
	return cfg, nil
}

// newRuntime connects to Postgres, applies the schema and builds the optional Redis and
// Telegram notifiers. An offline bot can send messages but does not poll for updates.
func newRuntime(ctx context.Context, cfg *config.AppConfig, offlineBot bool) (*runtime, error) {
	mainLogger := logger.Component("main")

	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if err := idb.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	mainLogger.Info("Database connection established and schema applied")

	rt := &runtime{
		cfg:          cfg,
		db:           db,
		participants: idb.NewPostgresParticipantRepository(db),
		cycles:       idb.NewPostgresCycleRepository(db),
	}

	var notifiers []app.FinalizationNotifier

	if cfg.RedisAddr != "" {
		rt.redis, err = events.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			rt.Close()
			return nil, err
		}
		notifiers = append(notifiers, events.NewResultPublisher(rt.redis, cfg.ResultsStream, logger.Component("result_publisher")))
		mainLogger.WithField("stream", cfg.ResultsStream).Info("Results stream enabled")
	}

	if cfg.TelegramToken != "" {
		rt.bot, err = telebot.NewBot(telebot.Settings{
			Token:   cfg.TelegramToken,
			Poller:  &telebot.LongPoller{Timeout: 10 * time.Second},
			Offline: offlineBot,
			OnError: func(err error, c telebot.Context) {
				entry := logger.Component("telebot").WithError(err)
				if c != nil && c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Error("Telegram update failed")
			},
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("could not create Telegram bot: %w", err)
		}
		notifiers = append(notifiers, telegram.NewMatchNotifier(telegram.NewTelebotAdapter(rt.bot), logger.Component("match_notifier")))
		mainLogger.Info("Telegram notifications enabled")
	}

	rt.cycleService = app.NewCycleService(rt.cycles, logger.Component("cycle_service"), cfg.DryRun, notifiers...)
	if cfg.DryRun {
		mainLogger.Warn("Dry run: round changes and matches are rolled back")
	}
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			logger.Log.WithError(err).Warn("Closing redis client")
		}
	}
	if err := rt.db.Close(); err != nil {
		logger.Log.WithError(err).Warn("Closing database")
	}
}

func logTickReport(entry *logrus.Entry, report *app.TickReport) {
	entry.WithFields(logrus.Fields{"due": report.Due, "failed": report.Failed}).Info("Tick finished")
	for id, outcome := range report.Outcomes {
		entry.WithFields(logrus.Fields{"event_id": id, "outcome": outcome}).Info("Boundary event")
	}
}
