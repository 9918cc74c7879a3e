package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-dataport/config"
	"github.com/target/mmk-dataport/internal/adapters/queue"
	"github.com/target/mmk-dataport/internal/artifact"
	"github.com/target/mmk-dataport/internal/codec"
	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/data"
	"github.com/target/mmk-dataport/internal/observability/promsink"
	"github.com/target/mmk-dataport/internal/observability/statsd"
	"github.com/target/mmk-dataport/internal/resource"
	"github.com/target/mmk-dataport/internal/resource/table"
	"github.com/target/mmk-dataport/internal/service"
)

const cacheNamespace = "dataport"

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs     *service.JobService
	Executor *service.Executor

	Repo      *data.JobRepo
	Queue     core.Queue
	Resources *resource.Registry
	Codecs    *codec.Registry
	Artifacts core.ArtifactStore
	Progress  core.ProgressStore

	Observability ObservabilityContainer

	asynqClient *asynq.Client
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// Sink fans metrics out to every enabled backend; nil when none is enabled.
	Sink       statsd.Sink
	Statsd     *statsd.Client
	Prometheus *promsink.Sink
}

// ServiceDeps contains the infrastructure services are built on.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Required when Config.NeedsRedis()
	Logger      *slog.Logger
}

// Close releases clients owned by the container.
func (c *ServiceContainer) Close() error {
	var errs []error
	if c.asynqClient != nil {
		if err := c.asynqClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close asynq client: %w", err))
		}
	}
	if c.Observability.Statsd != nil {
		if err := c.Observability.Statsd.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close statsd client: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewServices builds repositories, adapters and services from deps.
func NewServices(ctx context.Context, deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return nil, errors.New("service deps require config and database")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NeedsRedis() && deps.RedisClient == nil {
		return nil, errors.New("redis client is required by the configured queue or progress cache")
	}

	c := &ServiceContainer{
		Observability: BuildObservability(logger, cfg.Metrics),
		Repo:          data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger}),
		Codecs:        codec.NewDefaultRegistry(),
	}

	var err error
	if c.Resources, err = LoadResources(deps.DB, cfg, logger); err != nil {
		return nil, err
	}
	if c.Artifacts, err = NewArtifactStore(ctx, cfg.Storage, logger); err != nil {
		return nil, err
	}
	if cfg.Worker.ProgressCacheEnabled {
		c.Progress = data.NewProgressCacheRepo(data.NewRedisCacheRepo(deps.RedisClient, cacheNamespace), cfg.Worker.ProgressTTL)
	}
	if err = c.buildQueue(cfg, logger); err != nil {
		return nil, err
	}

	if c.Jobs, err = service.NewJobService(service.JobServiceOptions{
		Repo:      c.Repo,
		Resources: c.Resources,
		Codecs:    c.Codecs,
		Queue:     c.Queue,
		Progress:  c.Progress,
		Logger:    logger,
		Metrics:   c.Observability.Sink,
	}); err != nil {
		return nil, fmt.Errorf("job service: %w", err)
	}

	if c.Executor, err = service.NewExecutor(service.ExecutorOptions{
		Repo:      c.Repo,
		Resources: c.Resources,
		Codecs:    c.Codecs,
		Artifacts: c.Artifacts,
		Progress:  c.Progress,
		Lease:     cfg.Worker.JobLease,
		BatchSize: cfg.Worker.BatchSize,
		RowErrors: cfg.Worker.RowErrors(),
		Logger:    logger,
		Metrics:   c.Observability.Sink,
	}); err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	return c, nil
}

func (c *ServiceContainer) buildQueue(cfg *config.AppConfig, logger *slog.Logger) error {
	if cfg.Queue.Backend != config.QueueBackendAsynq {
		q, err := queue.NewPostgresQueue(c.Repo)
		if err != nil {
			return fmt.Errorf("postgres queue: %w", err)
		}
		c.Queue = q
		return nil
	}

	opt, err := AsynqRedisOpt(cfg.Redis)
	if err != nil {
		return fmt.Errorf("asynq redis options: %w", err)
	}
	c.asynqClient = asynq.NewClient(opt)
	q, err := queue.NewAsynqQueue(queue.AsynqQueueOptions{
		Client:   c.asynqClient,
		Queue:    cfg.Queue.Name,
		MaxRetry: cfg.Queue.MaxRetry,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("asynq queue: %w", err)
	}
	c.Queue = q
	return nil
}

// BuildObservability creates the enabled metrics backends. A statsd client that cannot be
// created is logged and skipped.
func BuildObservability(logger *slog.Logger, cfg config.MetricsConfig) ObservabilityContainer {
	var (
		out   ObservabilityContainer
		sinks []statsd.Sink
	)

	if cfg.IsStatsdEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.StatsdAddress,
			Prefix:  cfg.Namespace,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.Statsd = client
			sinks = append(sinks, client)
		}
	}

	if cfg.PrometheusEnabled {
		out.Prometheus = promsink.New(promsink.Options{Namespace: cfg.Namespace, Logger: logger})
		sinks = append(sinks, out.Prometheus)
	}

	out.Sink = statsd.Fanout(sinks...)
	return out
}

// NewArtifactStore returns the artifact store selected by cfg.Backend.
//
//nolint:ireturn // callers depend on the port only.
func NewArtifactStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (core.ArtifactStore, error) {
	if cfg.Backend != config.StorageBackendS3 {
		store, err := artifact.NewFileStore(artifact.FileStoreOptions{Dir: cfg.Dir, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("file artifact store: %w", err)
		}
		return store, nil
	}

	client, err := artifact.NewS3Client(ctx, artifact.S3ClientConfig{
		Region:       cfg.S3Region,
		Endpoint:     cfg.S3Endpoint,
		UsePathStyle: cfg.S3UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	store, err := artifact.NewS3Store(artifact.S3StoreOptions{
		Client: client,
		Bucket: cfg.S3Bucket,
		Prefix: cfg.S3Prefix,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 artifact store: %w", err)
	}
	return store, nil
}

// LoadResources registers the table resources declared in cfg.ResourcesFile. A missing file
// yields an empty registry in development and an error otherwise.
func LoadResources(db *sql.DB, cfg *config.AppConfig, logger *slog.Logger) (*resource.Registry, error) {
	if cfg.ResourcesFile == "" {
		return resource.NewRegistry()
	}

	cfgs, err := table.LoadFile(cfg.ResourcesFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && cfg.IsDev {
			logger.Warn("resources file not found, starting without resources", "path", cfg.ResourcesFile)
			return resource.NewRegistry()
		}
		return nil, fmt.Errorf("load resources: %w", err)
	}

	reg, err := resource.NewRegistry(table.Definitions(db, cfgs)...)
	if err != nil {
		return nil, fmt.Errorf("register resources: %w", err)
	}
	logger.Info("resources registered", "count", len(cfgs), "keys", reg.Keys())
	return reg, nil
}
