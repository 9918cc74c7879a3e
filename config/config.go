package config

import (
	"log/slog"
	"os"
	"strings"
)

// AppConfig is everything dataport and dataport-admin read from the environment (and an optional
// .env file). Each nested struct owns one variable prefix:
//   - DB_, REDIS_ (database.go)
//   - HTTP_ (http.go)
//   - WORKER_, REAPER_, QUEUE_ (services.go)
//   - STORAGE_ (storage.go)
//   - METRICS_ (observability.go)
type AppConfig struct {
	// IsDev relaxes startup checks, e.g. a missing resources file. DEV=true or
	// DATAPORT_ENV=development enables it.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// LogFile, when set, receives a JSON copy of every log record.
	LogFile string `env:"LOG_FILE"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig `envPrefix:"HTTP_"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,worker,reaper"`

	Worker WorkerConfig `envPrefix:"WORKER_"`
	Reaper ReaperConfig `envPrefix:"REAPER_"`
	Queue  QueueConfig  `envPrefix:"QUEUE_"`

	Storage StorageConfig `envPrefix:"STORAGE_"`

	// ResourcesFile is the YAML file declaring exportable resources.
	ResourcesFile string `env:"RESOURCES_FILE" envDefault:"config/resources.yaml"`

	Metrics MetricsConfig `envPrefix:"METRICS_"`
}

// Sanitize clamps and trims values after parsing. LoadConfig calls it.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Worker.Sanitize()
	c.Reaper.Sanitize()
	c.Queue.Sanitize()
	c.Storage.Sanitize()
	c.Metrics.Sanitize()
	c.ResourcesFile = strings.TrimSpace(c.ResourcesFile)
	c.LogFile = strings.TrimSpace(c.LogFile)

	c.detectDevMode()
}

func (c *AppConfig) detectDevMode() {
	if c.IsDev {
		return
	}
	switch strings.ToLower(os.Getenv("DATAPORT_ENV")) {
	case "development", "dev", "local":
		c.IsDev = true
	}
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *AppConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool { return c.isEnabled(ServiceModeHTTP) }

// IsWorkerEnabled returns true if the background executor is enabled.
func (c *AppConfig) IsWorkerEnabled() bool { return c.isEnabled(ServiceModeWorker) }

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool { return c.isEnabled(ServiceModeReaper) }

// NeedsRedis reports whether any enabled component talks to Redis.
func (c *AppConfig) NeedsRedis() bool {
	return c.Queue.Backend == QueueBackendAsynq || c.Worker.ProgressCacheEnabled
}
