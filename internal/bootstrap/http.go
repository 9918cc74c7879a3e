package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-dataport/config"
	httpx "github.com/target/mmk-dataport/internal/http"
)

// HTTPServerConfig is the input to NewHTTPServer. Services and Health may be nil.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Health   []httpx.HealthCheck
	Logger   *slog.Logger
}

// NewHTTPServer assembles the API handler and server without listening.
func NewHTTPServer(cfg *HTTPServerConfig) *http.Server {
	logger := logOrDefault(cfg.Logger)
	httpCfg := config.HTTPConfig{}
	if cfg.Config != nil {
		httpCfg = cfg.Config.HTTP
	}

	routes := httpx.RouterServices{
		HealthChecks:    cfg.Health,
		RequesterHeader: httpCfg.RequesterHeader,
		Logger:          logger,
	}
	if c := cfg.Services; c != nil {
		routes.Jobs = c.Jobs
		if c.Observability.Prometheus != nil {
			routes.Metrics = c.Observability.Prometheus.Handler()
		}
	}

	mws := []httpx.Middleware{
		httpx.Recover(logger),
		httpx.Requester(routes.RequesterHeader),
		httpx.Logging(logger),
	}
	if httpCfg.CompressionEnabled {
		logger.Info("HTTP compression enabled", "level", httpCfg.CompressionLevel)
		mws = append(mws, httpx.Compression(httpx.CompressionConfig{Level: httpCfg.CompressionLevel, Logger: logger}))
	}

	addr := httpCfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           httpx.Chain(httpx.NewRouter(routes), mws...),
		ReadHeaderTimeout: positive(httpCfg.ReadHeaderTimeout, 10*time.Second),
		IdleTimeout:       2 * time.Minute,
	}
}

func positive(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// ServeHTTP listens until ctx ends, then drains in-flight requests for up to shutdownTimeout.
func ServeHTTP(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	listenErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting HTTP server", "addr", server.Addr)
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		listenErr <- err
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}

// HealthChecks returns the dependency probes behind /healthz. Redis is probed only when present.
func HealthChecks(db interface{ PingContext(context.Context) error }, client redis.UniversalClient) []httpx.HealthCheck {
	checks := []httpx.HealthCheck{db.PingContext}
	if client != nil {
		checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}
	return checks
}
