package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config holds every environment variable named by spec.md §6 plus the
// service's own process-level settings.
type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	// RoutePrefix mounts the three §6 endpoints, default matching
	// flowmanager's original server.py url_prefix='/source/'.
	RoutePrefix string `env:"ROUTE_PREFIX" envDefault:"/source/"`

	// AuthServer is the JWKS endpoint the Verifyer validates bearer
	// tokens against (spec.md §6 environment variables).
	AuthServer string `env:"AUTH_SERVER"`
	// JWTSecret is the HS256 fallback used when AuthServer is unset
	// (local/dev, mirroring the teacher's JWT_SECRET).
	JWTSecret string `env:"JWT_SECRET"`

	// PlannerURL is the HTTP endpoint of the external Planner service.
	PlannerURL string `env:"PLANNER_URL"`
	// RunnerURL is the HTTP endpoint of the external PipelineRunner.
	RunnerURL string `env:"RUNNER_URL"`
	// RunnerRefreshURL is the optional DPP_URL-style refresh endpoint
	// pinged after dispatch (SPEC_FULL.md §4, supplemented feature 1).
	RunnerRefreshURL string `env:"DPP_URL"`

	EventsURL    string `env:"EVENTS_URL"`
	IncidentsURL string `env:"INCIDENTS_URL"`

	EventsElasticsearchHost string `env:"EVENTS_ELASTICSEARCH_HOST"`
	DatasetsIndexName       string `env:"DATASETS_INDEX_NAME" envDefault:"datasets"`

	PkgstoreBucket    string `env:"PKGSTORE_BUCKET"`
	PkgstoreEndpoint  string `env:"PKGSTORE_ENDPOINT"`
	PkgstoreAccessKey string `env:"PKGSTORE_ACCESS_KEY"`
	PkgstoreSecretKey string `env:"PKGSTORE_SECRET_KEY"`
	PkgstoreUseSSL    bool   `env:"PKGSTORE_USE_SSL" envDefault:"true"`

	AllowedTypes []string `env:"ALLOWED_TYPES" envSeparator:","`

	FlowmanagerVerbosity int `env:"FLOWMANAGER_VERBOSITY" envDefault:"0"`

	// SchedulerTickIntervalSec / SchedulerSleepStepSec implement spec.md
	// §4.E's 60s-advance / 5s-sleep-increment loop shape.
	SchedulerTickIntervalSec int `env:"SCHEDULER_TICK_INTERVAL_SEC" envDefault:"60" validate:"min=1"`
	SchedulerSleepStepSec    int `env:"SCHEDULER_SLEEP_STEP_SEC" envDefault:"5" validate:"min=1"`

	FanoutQueueSize int `env:"FANOUT_QUEUE_SIZE" envDefault:"256" validate:"min=1"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NormalizedRoutePrefix ensures a single leading and trailing slash, the
// way gin route groups expect it.
func (c *Config) NormalizedRoutePrefix() string {
	p := c.RoutePrefix
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
