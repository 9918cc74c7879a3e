// Command dataport runs the transfer job engine: the HTTP API, the queue worker and the lease
// reaper, selected with SERVICES.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/target/mmk-dataport/config"
	"github.com/target/mmk-dataport/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "dataport exited", "error", err)
		os.Exit(1) //nolint:forbidigo // non-zero exit for supervisors
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := bootstrap.ConfigureLogger(&cfg)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, logger, "log file", closeLog)

	logger.InfoContext(ctx, "starting dataport",
		"services", bootstrap.GetEnabledServices(&cfg),
		"queue_backend", cfg.Queue.Backend,
		"storage_backend", cfg.Storage.Backend,
		"db", cfg.Postgres.Host+"/"+cfg.Postgres.Name,
	)
	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	infra, err := bootstrap.OpenInfra(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, logger, "infrastructure", infra.Close)

	if err = migrateOnStart(ctx, &cfg, infra, logger); err != nil {
		return err
	}

	services, err := infra.Services(ctx, &cfg, logger)
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(ctx, &bootstrap.ServiceOrchestrationConfig{
		Config:      &cfg,
		Services:    services,
		DB:          infra.DB,
		RedisClient: infra.Redis,
		Logger:      logger,
	})
}

func migrateOnStart(ctx context.Context, cfg *config.AppConfig, infra *bootstrap.Infra, logger *slog.Logger) error {
	if !cfg.Postgres.RunMigrationsOnStart {
		logger.InfoContext(ctx, "startup migrations disabled", "env", "DB_RUN_MIGRATIONS_ON_START")
		return nil
	}
	return bootstrap.RunMigrations(ctx, infra.DB, logger)
}

func closeQuietly(ctx context.Context, logger *slog.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.ErrorContext(ctx, "close failed", "what", what, "error", err)
	}
}
