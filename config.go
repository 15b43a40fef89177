package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the service configuration, read from CROSSWORD_* variables.
type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	OwnerID string `env:"OWNER_ID"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"crosswordprize"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	Store     string `env:"STORE" envDefault:"memory"`
	StorePath string `env:"STORE_PATH"`

	GCPProjectID string `env:"GCP_PROJECT_ID"`
	GCPRegion    string `env:"GCP_REGION"`

	RewardWebhookURL string `env:"REWARD_WEBHOOK_URL"`
	PayoutQueueSize  int    `env:"PAYOUT_QUEUE_SIZE" envDefault:"256"`

	SolveRate   float64 `env:"SOLVE_RATE" envDefault:"2"`
	SolveBurst  int     `env:"SOLVE_BURST" envDefault:"10"`
	UploadRate  float64 `env:"UPLOAD_RATE" envDefault:"0.1"`
	UploadBurst int     `env:"UPLOAD_BURST" envDefault:"5"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`
}

// LoadConfig parses the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CROSSWORD_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the owner and store settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return fmt.Errorf("CROSSWORD_OWNER_ID is required")
	}
	switch c.Store {
	case "memory":
	case "badger", "sqlite":
		if c.StorePath == "" {
			return fmt.Errorf("CROSSWORD_STORE_PATH is required for %s store", c.Store)
		}
	default:
		return fmt.Errorf("unknown store %q (memory, badger or sqlite)", c.Store)
	}
	return nil
}

// OpenStore opens the configured backend.
func (c Config) OpenStore(logger *slog.Logger) (Store, error) {
	switch c.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "badger":
		return OpenBadgerStore(c.StorePath, logger)
	case "sqlite":
		return OpenSQLiteStore(c.StorePath)
	}
	return nil, fmt.Errorf("unknown store %q", c.Store)
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c Config) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
