package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/manpreetbhatti/canvasroom/internal/ratelimit"
	"github.com/manpreetbhatti/canvasroom/internal/retention"
)

type Config struct {
	// Listen port for HTTP and WebSocket traffic
	Port string `env:"PORT" envDefault:"3000"`

	DBPath string `env:"CANVASROOM_DB_PATH" envDefault:"./data/canvasroom.db"`

	// Empty allows any origin
	AllowedOrigins []string `env:"CANVASROOM_ALLOWED_ORIGINS" envSeparator:","`

	RelayRate    float64 `env:"CANVASROOM_RELAY_RATE"    envDefault:"120"`
	RelayBurst   int     `env:"CANVASROOM_RELAY_BURST"   envDefault:"240"`
	HistoryRate  float64 `env:"CANVASROOM_HISTORY_RATE"  envDefault:"20"`
	HistoryBurst int     `env:"CANVASROOM_HISTORY_BURST" envDefault:"40"`

	RetentionInterval time.Duration `env:"CANVASROOM_RETENTION_INTERVAL" envDefault:"10m"`
	RetentionMaxAge   time.Duration `env:"CANVASROOM_RETENTION_MAX_AGE"  envDefault:"168h"`

	Advertise     bool   `env:"CANVASROOM_MDNS"`
	AdvertiseName string `env:"CANVASROOM_MDNS_NAME"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.RelayRate <= 0 || c.HistoryRate <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.RelayBurst < 1 || c.HistoryBurst < 1 {
		return fmt.Errorf("rate limit bursts must be at least 1")
	}
	if c.RetentionInterval <= 0 {
		return fmt.Errorf("retention interval must be positive")
	}
	return nil
}

func (c Config) RatePolicy() ratelimit.Policy {
	return ratelimit.Policy{
		Relay:   ratelimit.Rate{PerSecond: c.RelayRate, Burst: c.RelayBurst},
		History: ratelimit.Rate{PerSecond: c.HistoryRate, Burst: c.HistoryBurst},
	}
}

func (c Config) Retention() retention.Config {
	return retention.Config{
		Interval: c.RetentionInterval,
		MaxAge:   c.RetentionMaxAge,
	}
}
