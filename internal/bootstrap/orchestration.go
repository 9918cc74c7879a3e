package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-dataport/config"
)

// ServiceOrchestrationConfig is what RunServicesWithShutdown needs to start every service.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    *ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// backgroundService runs until its context ends. A context.Canceled return is a clean stop.
type backgroundService struct {
	mode config.ServiceMode
	run  func(context.Context) error
}

func (c *ServiceOrchestrationConfig) backgroundServices() []backgroundService {
	return []backgroundService{
		{mode: config.ServiceModeHTTP, run: c.serveHTTP},
		{mode: config.ServiceModeWorker, run: func(ctx context.Context) error {
			return RunWorker(ctx, WorkerConfig{Config: c.Config, DB: c.DB, Services: c.Services, Logger: c.Logger})
		}},
		{mode: config.ServiceModeReaper, run: func(ctx context.Context) error {
			return RunReaper(ctx, ReaperConfig{DB: c.DB, Config: c.Config.Reaper, Services: c.Services, Logger: c.Logger})
		}},
	}
}

func (c *ServiceOrchestrationConfig) serveHTTP(ctx context.Context) error {
	server := NewHTTPServer(&HTTPServerConfig{
		Config:   c.Config,
		Services: c.Services,
		Health:   HealthChecks(c.DB, c.RedisClient),
		Logger:   c.Logger,
	})
	return ServeHTTP(ctx, server, c.Config.HTTP.ShutdownTimeout, c.Logger)
}

// RunServicesWithShutdown runs the enabled services until SIGINT or SIGTERM arrives or one of
// them fails, and returns once all of them have stopped.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config requires config and services")
	}
	cfg.Logger = logOrDefault(cfg.Logger)

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runBackgroundServices(ctx, enabled, cfg.backgroundServices(), cfg.Logger)
}

// runBackgroundServices starts the enabled entries of services. The first failure cancels the rest.
func runBackgroundServices(
	ctx context.Context,
	enabled map[config.ServiceMode]bool,
	services []backgroundService,
	logger *slog.Logger,
) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		if !enabled[svc.mode] {
			continue
		}
		g.Go(func() error {
			log := logger.With("service", string(svc.mode))
			log.InfoContext(ctx, "service started")
			if err := svc.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s failed: %w", svc.mode, err)
			}
			log.InfoContext(ctx, "service stopped")
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		logger.Error("service error", "error", err)
	}
	return err
}
