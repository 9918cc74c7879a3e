package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-dataport/config"
	"github.com/target/mmk-dataport/internal/migrate"
)

const connectTimeout = 5 * time.Second

// ConnectDB opens the Postgres pool and pings it.
func ConnectDB(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conns := cfg.MaxConns
	if conns < 1 {
		conns = 25
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(max(1, conns/5))
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := verify(ctx, "database", db.PingContext, db.Close); err != nil {
		return nil, err
	}
	logOrDefault(logger).InfoContext(ctx, "database connected", "host", cfg.Host, "port", cfg.Port, "database", cfg.Name)
	return db, nil
}

// ConnectRedis builds the client for the configured topology and pings it.
//
//nolint:ireturn // direct, sentinel and cluster clients share redis.UniversalClient.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	client, desc, err := redisClient(cfg)
	if err != nil {
		return nil, err
	}
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := verify(ctx, "redis", ping, client.Close); err != nil {
		return nil, err
	}
	logOrDefault(logger).InfoContext(ctx, "redis connected", "addr", desc)
	return client, nil
}

// verify pings within connectTimeout and closes the connection if the ping fails.
func verify(ctx context.Context, what string, ping func(context.Context) error, closeFn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(ctx); err != nil {
		return errors.Join(fmt.Errorf("ping %s: %w", what, err), closeFn())
	}
	return nil
}

func logOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

//nolint:ireturn // see ConnectRedis.
func redisClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	nodes := cfg.Nodes()
	mode := cfg.Mode()
	if mode != config.RedisModeDirect && len(nodes) == 0 {
		return nil, "", fmt.Errorf("redis %s mode needs at least one node", mode)
	}

	switch mode {
	case config.RedisModeCluster:
		opts := &redis.ClusterOptions{Addrs: nodes, Password: cfg.Password}
		return redis.NewClusterClient(opts), "cluster:" + strings.Join(nodes, ","), nil
	case config.RedisModeSentinel:
		opts := &redis.FailoverOptions{
			MasterName:       cfg.SentinelMasterName,
			SentinelAddrs:    nodes,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
		}
		return redis.NewFailoverClient(opts), "sentinel:" + cfg.SentinelMasterName, nil
	}

	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, "", errors.New("redis direct mode needs REDIS_URI")
	}
	if !cfg.IsURL() {
		return redis.NewClient(&redis.Options{Addr: uri, Password: cfg.Password}), uri, nil
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), opts.Addr, nil
}

// AsynqRedisOpt translates cfg into asynq connection options. asynq dials its own connections.
//
//nolint:ireturn // asynq takes any RedisConnOpt.
func AsynqRedisOpt(cfg config.RedisConfig) (asynq.RedisConnOpt, error) {
	nodes := cfg.Nodes()
	switch cfg.Mode() {
	case config.RedisModeCluster:
		if len(nodes) == 0 {
			return nil, errors.New("redis cluster mode needs at least one node")
		}
		return asynq.RedisClusterClientOpt{Addrs: nodes, Password: cfg.Password}, nil
	case config.RedisModeSentinel:
		return asynq.RedisFailoverClientOpt{
			MasterName:       cfg.SentinelMasterName,
			SentinelAddrs:    nodes,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
		}, nil
	}

	uri := strings.TrimSpace(cfg.URI)
	if !cfg.IsURL() {
		return asynq.RedisClientOpt{Addr: uri, Password: cfg.Password}, nil
	}
	opt, err := asynq.ParseRedisURI(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opt, nil
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logOrDefault(logger).InfoContext(ctx, "database migrations completed")
	return nil
}
