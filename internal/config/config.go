// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr                string        `env:"ADDR" envDefault:":8080"`
	AdminSecret         string        `env:"ADMIN_SECRET,required,notEmpty"`
	CapabilityTTL       time.Duration `env:"CAPABILITY_TTL" envDefault:"12h"`
	RevealDelay         time.Duration `env:"REVEAL_DELAY" envDefault:"8500ms"`
	DatabaseURL         string        `env:"DATABASE_URL"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat           string        `env:"LOG_FORMAT" envDefault:"json"`
	TestAccountPrefixes []string      `env:"TEST_ACCOUNT_PREFIXES" envDefault:"bot_,test_" envSeparator:","`
	AllowedOrigins      []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	OutboxSize          int           `env:"OUTBOX_SIZE" envDefault:"16"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads an optional .env file from the working directory, then the
// process environment. Variables already set win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.RevealDelay <= 0 {
		return errors.New("REVEAL_DELAY must be positive")
	}
	if c.OutboxSize < 1 {
		return errors.New("OUTBOX_SIZE must be at least 1")
	}
	if len(c.TestAccountPrefixes) == 0 {
		return errors.New("TEST_ACCOUNT_PREFIXES must name at least one prefix")
	}
	return nil
}
