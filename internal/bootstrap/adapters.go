package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/target/mmk-dataport/config"
	"github.com/target/mmk-dataport/internal/adapters/jobrunner"
	"github.com/target/mmk-dataport/internal/adapters/queue"
	"github.com/target/mmk-dataport/internal/adapters/reaper"
)

// WorkerConfig contains configuration for the background executor.
type WorkerConfig struct {
	Config   *config.AppConfig
	DB       *sql.DB
	Services *ServiceContainer
	Logger   *slog.Logger
}

// RunWorker consumes dispatched jobs from the configured queue backend until ctx is cancelled.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	appCfg := cfg.Config
	if appCfg.Queue.Backend == config.QueueBackendAsynq {
		opt, err := AsynqRedisOpt(appCfg.Redis)
		if err != nil {
			return fmt.Errorf("asynq redis options: %w", err)
		}
		worker, err := queue.NewWorker(queue.WorkerOptions{
			Redis:       opt,
			Executor:    cfg.Services.Executor,
			Queue:       appCfg.Queue.Name,
			Concurrency: appCfg.Worker.Concurrency,
			Logger:      cfg.Logger,
		})
		if err != nil {
			return fmt.Errorf("create asynq worker: %w", err)
		}
		return worker.Run(ctx)
	}

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		DB:           cfg.DB,
		Executor:     cfg.Services.Executor,
		Logger:       cfg.Logger,
		Concurrency:  appCfg.Worker.Concurrency,
		PollInterval: appCfg.Worker.PollInterval,
		Feed:         cfg.Services.Repo,
	})
	if err != nil {
		return fmt.Errorf("create job runner: %w", err)
	}
	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB       *sql.DB
	Config   config.ReaperConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := NewReaperRunner(cfg)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

// NewReaperRunner wires the reaper against the container's repository and queue.
func NewReaperRunner(cfg ReaperConfig) (*reaper.Runner, error) {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Queue:   cfg.Services.Queue,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Repo:    cfg.Services.Repo,
		Metrics: cfg.Services.Observability.Sink,
	})
	if err != nil {
		return nil, fmt.Errorf("create reaper runner: %w", err)
	}
	return runner, nil
}
