// Package config loads service configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BotToken     string `envconfig:"BOT_TOKEN" required:"true"`
	DatabaseURL  string `envconfig:"DATABASE_URL"` // empty selects the in-memory store
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" required:"true"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	HTTPAddr     string `envconfig:"HTTP_ADDR" default:":8080"`

	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	CollectFor     time.Duration `envconfig:"COLLECT_FOR" default:"8h"`
	SweepEvery     time.Duration `envconfig:"SWEEP_EVERY" default:"1m"`
	SummaryTimeout time.Duration `envconfig:"SUMMARY_TIMEOUT" default:"60s"`
	SummaryRetries int           `envconfig:"SUMMARY_RETRIES" default:"3"`

	DefaultCollectHour   int    `envconfig:"DEFAULT_COLLECT_HOUR" default:"17"`
	DefaultCollectMinute int    `envconfig:"DEFAULT_COLLECT_MINUTE" default:"30"`
	DefaultTimezone      string `envconfig:"DEFAULT_TZ" default:"Asia/Bishkek"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the environment into Config. A missing .env file is fine;
// real deployments configure through the environment directly.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
