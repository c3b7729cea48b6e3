// Package config loads service settings from the environment (.env first, then process env).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	// --- HTTP ---
	HTTPAddr       string `envconfig:"HTTP_ADDR" default:":5200"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	// Shared secret the gateway sends as "Authorization: Bearer <token>".
	GatewayToken string `envconfig:"GAME_SERVICE_TOKEN" required:"true"`

	// --- Database ---
	DBDriver    string `envconfig:"DB_DRIVER" default:"postgres"` // postgres | sqlite
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// --- Queue ---
	QueueWorkers           int           `envconfig:"QUEUE_WORKERS" default:"4"`
	QueuePollInterval      time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"2s"`
	QueueMaxAttempts       int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"8"`
	QueueVisibilityTimeout time.Duration `envconfig:"QUEUE_VISIBILITY_TIMEOUT" default:"2m"`
	QueueBaseBackoff       time.Duration `envconfig:"QUEUE_BASE_BACKOFF" default:"5s"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"info"`
	// Cron expression (gocron, standard 5 fields) for the repeatable mission reset.
	MissionResetCron string `envconfig:"MISSION_RESET_CRON" default:"0 0 * * *"`
}

// Load reads .env if present and maps the environment onto Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("⚠️  No .env file found, reading environment variables directly")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.QueueWorkers < 1 {
		return fmt.Errorf("QUEUE_WORKERS must be at least 1")
	}
	if c.QueueMaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	// CORS runs with credentials, which fiber refuses to combine with a wildcard.
	for _, origin := range strings.Split(c.Origins(), ",") {
		if origin == "" || origin == "*" {
			return fmt.Errorf("ALLOWED_ORIGINS must list explicit origins, got %q", c.AllowedOrigins)
		}
	}
	return nil
}

// Origins returns the CORS origins as fiber expects them: comma separated, trimmed.
func (c *Config) Origins() string {
	parts := strings.Split(c.AllowedOrigins, ",")
	for i, origin := range parts {
		parts[i] = strings.TrimSpace(origin)
	}
	return strings.Join(parts, ",")
}

// SetupLogging configures the global logrus logger.
func (c *Config) SetupLogging() {
	level, err := log.ParseLevel(c.AppLogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.AppEnv == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
