package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-dataport/config"
)

// Infra holds the connections a process opens at startup and everything that must be released
// with them.
type Infra struct {
	DB *sql.DB
	// Redis is nil unless a Redis-backed queue or progress cache is configured.
	Redis redis.UniversalClient

	closers []func() error
}

// OpenInfra connects Postgres and, when cfg needs it, Redis. On failure nothing stays open.
func OpenInfra(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infra, error) {
	db, err := ConnectDB(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	infra := &Infra{DB: db}
	infra.Defer(db.Close)

	if cfg.NeedsRedis() {
		client, rerr := ConnectRedis(ctx, cfg.Redis, logger)
		if rerr != nil {
			return nil, errors.Join(fmt.Errorf("connect redis: %w", rerr), infra.Close())
		}
		infra.Redis = client
		infra.Defer(client.Close)
	}
	return infra, nil
}

// Defer registers fn to run on Close. Close runs them newest first.
func (i *Infra) Defer(fn func() error) {
	i.closers = append(i.closers, fn)
}

// Close releases everything registered with Defer and reports every failure.
func (i *Infra) Close() error {
	var errs []error
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			errs = append(errs, err)
		}
	}
	i.closers = nil
	return errors.Join(errs...)
}

// Services builds the service container on the open connections and registers its Close.
func (i *Infra) Services(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*ServiceContainer, error) {
	services, err := NewServices(ctx, &ServiceDeps{
		Config:      cfg,
		DB:          i.DB,
		RedisClient: i.Redis,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	i.Defer(services.Close)
	return services, nil
}
