package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL       string        `validate:"required"`
	LogLevel          string        `validate:"required"`
	Environment       string        `validate:"required"`
	PollSpec          string        `validate:"required"` // cron spec for the boundary-event poll
	TickTimeout       time.Duration `validate:"gt=0"`
	HTTPAddr          string        `validate:"required"`
	TelegramToken     string        // optional, enables the bot
	AdminTelegramID   int64         `validate:"required_with=TelegramToken"`
	RedisAddr         string        // optional, enables the results stream
	RedisPassword     string
	RedisDB           int    `validate:"gte=0"`
	ResultsStream     string `validate:"required_with=RedisAddr"`
	CandidatePageSize int    `validate:"gte=1,lte=100"`
	DryRun            bool
}

var validate = validator.New()

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.PollSpec = os.Getenv("POLL_SPEC")
	if cfg.PollSpec == "" {
		cfg.PollSpec = "@every 1m" // Default: check for due boundary events every minute
	}

	cfg.TickTimeout = 2 * time.Minute
	if v := os.Getenv("TICK_TIMEOUT"); v != "" {
		cfg.TickTimeout, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TICK_TIMEOUT: %w", err)
		}
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")

	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		cfg.RedisDB, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
	}

	cfg.ResultsStream = os.Getenv("RESULTS_STREAM")
	if cfg.ResultsStream == "" {
		cfg.ResultsStream = "matching:finalized"
	}

	cfg.CandidatePageSize = 10
	if v := os.Getenv("CANDIDATE_PAGE_SIZE"); v != "" {
		cfg.CandidatePageSize, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CANDIDATE_PAGE_SIZE: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints. Call it again after applying CLI overrides.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ApplyInterval replaces the poll spec with a fixed interval.
func (c *AppConfig) ApplyInterval(d time.Duration) {
	if d > 0 {
		c.PollSpec = "@every " + d.String()
	}
}
