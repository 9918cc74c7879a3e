package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/mmk-dataport/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the background executor.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs lease expiry and redispatch maintenance.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, worker, reaper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains background executor configuration.
type WorkerConfig struct {
	// Concurrency is the number of jobs executed in parallel by one process.
	Concurrency int `env:"CONCURRENCY" envDefault:"2"`

	// BatchSize is the number of records processed between progress checkpoints and cancellation checks.
	BatchSize int `env:"BATCH_SIZE" envDefault:"100"`

	// JobLease is how long a running job may go without a checkpoint before the reaper fails it.
	JobLease time.Duration `env:"JOB_LEASE" envDefault:"2m"`

	// RowErrorPolicy decides whether row errors fail the job: fail, tolerate or ratio.
	RowErrorPolicy model.RowErrorMode `env:"ROW_ERROR_POLICY" envDefault:"fail"`

	// RowErrorMaxRatio is the tolerated failed/processed ratio when RowErrorPolicy=ratio.
	RowErrorMaxRatio float64 `env:"ROW_ERROR_MAX_RATIO" envDefault:"0"`

	// ProgressCacheEnabled publishes live progress to Redis.
	ProgressCacheEnabled bool `env:"PROGRESS_CACHE_ENABLED" envDefault:"true"`

	// ProgressTTL bounds how long live progress survives a dead worker.
	ProgressTTL time.Duration `env:"PROGRESS_TTL" envDefault:"1h"`

	// PollInterval is the fallback poll interval of the postgres runner when no notification arrives.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.BatchSize < 1 {
		w.BatchSize = 1
	}
	if w.JobLease < 10*time.Second {
		w.JobLease = 10 * time.Second
	}
	if !w.RowErrorPolicy.Valid() {
		w.RowErrorPolicy = model.RowErrorFail
	}
	if w.RowErrorMaxRatio < 0 {
		w.RowErrorMaxRatio = 0
	}
	if w.RowErrorMaxRatio > 1 {
		w.RowErrorMaxRatio = 1
	}
	if w.ProgressTTL < time.Minute {
		w.ProgressTTL = time.Minute
	}
	if w.PollInterval < 100*time.Millisecond {
		w.PollInterval = 100 * time.Millisecond
	}
}

// RowErrors returns the configured row-error policy.
func (w *WorkerConfig) RowErrors() model.RowErrorPolicy {
	return model.RowErrorPolicy{Mode: w.RowErrorPolicy, MaxRatio: w.RowErrorMaxRatio}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"INTERVAL" envDefault:"1m"`

	// RedispatchAfter is how long a dispatched job may stay CREATED before it is enqueued again.
	RedispatchAfter time.Duration `env:"REDISPATCH_AFTER" envDefault:"10m"`

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.RedispatchAfter < time.Minute {
		r.RedispatchAfter = time.Minute
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// QueueBackend selects how dispatched jobs reach workers.
type QueueBackend string

const (
	// QueueBackendPostgres uses LISTEN/NOTIFY on the job table.
	QueueBackendPostgres QueueBackend = "postgres"
	// QueueBackendAsynq uses a Redis-backed asynq queue.
	QueueBackendAsynq QueueBackend = "asynq"
)

// QueueConfig contains dispatch queue configuration.
type QueueConfig struct {
	Backend QueueBackend `env:"BACKEND" envDefault:"postgres"`

	// Name is the asynq queue name.
	Name string `env:"NAME" envDefault:"transfers"`

	// MaxRetry is the asynq retry budget per task.
	MaxRetry int `env:"MAX_RETRY" envDefault:"3"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	switch QueueBackend(strings.ToLower(strings.TrimSpace(string(q.Backend)))) {
	case QueueBackendAsynq:
		q.Backend = QueueBackendAsynq
	default:
		q.Backend = QueueBackendPostgres
	}
	if q.Name = strings.TrimSpace(q.Name); q.Name == "" {
		q.Name = "transfers"
	}
	if q.MaxRetry < 0 {
		q.MaxRetry = 0
	}
}
