package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port              int     `env:"PORT" envDefault:"8080"`
	DatabaseURL       string  `env:"DATABASE_URL,required"`
	RedisURL          string  `env:"REDIS_URL,required"`
	RemoteBaseURL     string  `env:"REMOTE_API_BASE_URL,required"`
	ConsumerKey       string  `env:"REMOTE_CONSUMER_KEY"`
	ConsumerSecret    string  `env:"REMOTE_CONSUMER_SECRET"`
	WorkerConcurrency int     `env:"WORKER_CONCURRENCY" envDefault:"4"`
	QuotaRate         float64 `env:"QUOTA_RATE" envDefault:"1.0"`
	QuotaMax          float64 `env:"QUOTA_MAX" envDefault:"200000"`
	SweepSeconds      int     `env:"SWEEP_INTERVAL_SECONDS" envDefault:"900"`
	LogLevel          string  `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepSeconds) * time.Second
}

func (c *Config) Validate(isProduction bool) error {
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.QuotaMax <= 0 {
		return fmt.Errorf("QUOTA_MAX must be positive")
	}
	if c.QuotaRate < 0 {
		return fmt.Errorf("QUOTA_RATE must not be negative")
	}

	if isProduction {
		if c.ConsumerKey == "" || c.ConsumerSecret == "" {
			return fmt.Errorf("REMOTE_CONSUMER_KEY and REMOTE_CONSUMER_SECRET must be set in production")
		}
		if !strings.HasPrefix(c.RemoteBaseURL, "https://") {
			log.Warn().Msg("REMOTE_API_BASE_URL is not https in production")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
