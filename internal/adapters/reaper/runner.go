// Package reaper runs the reaper service as a background process or a one-off sweep.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/target/mmk-dataport/config"
	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/data"
	"github.com/target/mmk-dataport/internal/observability/statsd"
	"github.com/target/mmk-dataport/internal/service"
)

// RunnerOptions holds the dependencies for creating a Runner. Repo defaults to a JobRepo on DB.
type RunnerOptions struct {
	DB      *sql.DB
	Repo    core.ReaperRepository
	Queue   core.Queue // Required
	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner owns a ReaperService.
type Runner struct {
	svc    *service.ReaperService
	logger *slog.Logger
}

func NewRunner(opts RunnerOptions) (*Runner, error) {
	repo := opts.Repo
	switch {
	case repo == nil && opts.DB == nil:
		return nil, errors.New("database connection is required")
	case opts.Queue == nil:
		return nil, errors.New("queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if repo == nil {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: logger})
	}

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    repo,
		Queue:   opts.Queue,
		Config:  opts.Config,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Runner{svc: svc, logger: logger.With("component", "reaper_runner")}, nil
}

// Run sweeps on the configured interval until ctx ends.
func (r *Runner) Run(ctx context.Context) error {
	return r.svc.Run(ctx)
}

// RunOnce sweeps once and logs what it recovered.
func (r *Runner) RunOnce(ctx context.Context) (service.SweepReport, error) {
	report, err := r.svc.Sweep(ctx)
	r.logger.InfoContext(ctx, "reaper sweep finished",
		"expired", report.Expired,
		"redispatched", report.Redispatched,
		"ok", err == nil,
	)
	return report, err
}
