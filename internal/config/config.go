package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from the environment with the QC_ prefix.
type Config struct {
	Addr         string        `envconfig:"ADDR" default:":8080"`
	DatabaseDSN  string        `envconfig:"DB_DSN" required:"true"`
	RedisAddr    string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	JWTSecret    string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL     time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	EventChannel string        `envconfig:"EVENT_CHANNEL" default:"quickchat-events"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("qc", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
