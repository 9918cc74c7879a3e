package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/target/mmk-dataport/internal/core"
	domainjob "github.com/target/mmk-dataport/internal/domain/job"
	"github.com/target/mmk-dataport/internal/domain/model"
	apperrors "github.com/target/mmk-dataport/internal/errors"
	"github.com/target/mmk-dataport/internal/observability/metrics"
	"github.com/target/mmk-dataport/internal/observability/statsd"
)

const (
	defaultExecutorBatchSize = 100
	finalWriteTimeout        = 10 * time.Second
)

// errJobLeftRunning is returned by a checkpoint whose conditional update no longer matched.
var errJobLeftRunning = errors.New("job is no longer running")

// ExecutorOptions groups dependencies for Executor.
type ExecutorOptions struct {
	Repo              core.JobRepository    // Required: job repository
	Resources         core.ResourceRegistry // Required: registered resources
	Codecs            core.CodecRegistry    // Required: registered file formats
	Artifacts         core.ArtifactStore    // Required: artifact storage
	Progress          core.ProgressStore    // Optional: live progress cache
	Lease             time.Duration         // Required: lease granted on start and per renewal
	HeartbeatInterval time.Duration         // Optional: lease renewal period (default a third of Lease)
	BatchSize         int                   // Optional: records between checkpoints (default 100)
	RowErrors         model.RowErrorPolicy  // Optional: zero value fails on any row error
	Logger            *slog.Logger          // Optional: structured logger
	Metrics           statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// Executor runs dispatched jobs. Each Execute call claims the job with the CREATED→RUNNING
// conditional update and, once claimed, drives it to a terminal status.
type Executor struct {
	repo        core.JobRepository
	resources   core.ResourceRegistry
	codecs      core.CodecRegistry
	artifacts   core.ArtifactStore
	progress    core.ProgressStore
	leasePolicy *domainjob.LeasePolicy
	heartbeat   time.Duration
	batchSize   int
	rowErrors   model.RowErrorPolicy
	logger      *slog.Logger
	metrics     statsd.Sink
}

// NewExecutor constructs a new Executor.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	switch {
	case opts.Repo == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Resources == nil:
		return nil, errors.New("ResourceRegistry is required")
	case opts.Codecs == nil:
		return nil, errors.New("CodecRegistry is required")
	case opts.Artifacts == nil:
		return nil, errors.New("ArtifactStore is required")
	}

	leasePolicy, err := domainjob.NewLeasePolicy(opts.Lease)
	if err != nil {
		return nil, fmt.Errorf("create lease policy: %w", err)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExecutorBatchSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = leasePolicy.HeartbeatInterval()
	}

	logger = logger.With("component", "executor")
	if leasePolicy.Clamped() {
		logger.Warn("job lease raised to minimum", "configured", opts.Lease, "lease", leasePolicy.Lease())
	}
	logger.Debug("Executor initialized",
		"lease", leasePolicy.Lease(),
		"heartbeat", heartbeat,
		"batch_size", batchSize,
		"row_error_policy", opts.RowErrors.String(),
	)

	return &Executor{
		repo:        opts.Repo,
		resources:   opts.Resources,
		codecs:      opts.Codecs,
		artifacts:   opts.Artifacts,
		progress:    opts.Progress,
		leasePolicy: leasePolicy,
		heartbeat:   heartbeat,
		batchSize:   batchSize,
		rowErrors:   opts.RowErrors,
		logger:      logger,
		metrics:     opts.Metrics,
	}, nil
}

// Execute runs the job with the given id. Missing, terminal and already claimed jobs are skipped
// without side effects. Failures end in the error terminal status; Execute never reports them to the
// caller so queue retries cannot re-run a claimed job.
func (e *Executor) Execute(ctx context.Context, jobID string) {
	job, err := e.repo.GetByID(ctx, jobID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			e.logger.DebugContext(ctx, "skipping missing job", "id", jobID)
			return
		}
		e.logger.ErrorContext(ctx, "failed to load job", "id", jobID, "error", err)
		return
	}
	if !model.CanTransition(job.Direction, job.Status, job.Direction.RunningStatus()) {
		e.logger.DebugContext(ctx, "skipping job", "id", jobID, "status", job.Status)
		return
	}

	started, err := e.repo.Start(ctx, core.StartJobParams{
		ID:        job.ID,
		Direction: job.Direction,
		Lease:     e.leasePolicy.Lease(),
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to start job", "id", jobID, "error", err)
		return
	}
	if !started {
		e.logger.DebugContext(ctx, "job claimed elsewhere or cancelled", "id", jobID)
		return
	}

	job.Status = job.Direction.RunningStatus()
	e.emit(job, metrics.TransitionStart, metrics.ResultSuccess, 0, nil)
	e.logger.InfoContext(ctx, "job started",
		"id", job.ID,
		"direction", job.Direction,
		"resource", job.Resource.Key,
		"file_format", job.FileFormat,
	)

	runCtx, stopRun := context.WithCancelCause(ctx)
	defer stopRun(nil)

	r := &jobRun{exec: e, job: job, result: model.NewJobResult(), startedAt: time.Now()}
	stopHeartbeat := r.startHeartbeat(runCtx, stopRun)
	defer stopHeartbeat()

	out, runErr := r.runSafely(runCtx)
	if errors.Is(context.Cause(runCtx), errJobLeftRunning) {
		runErr = errJobLeftRunning
	}
	r.finish(runCtx, out, runErr)
}

func (e *Executor) emit(job *model.TransferJob, transition, result string, d time.Duration, err error) {
	metrics.EmitJobLifecycle(e.metrics, metrics.JobMetric{
		Direction:  string(job.Direction),
		Resource:   job.Resource.Key,
		Transition: transition,
		Result:     result,
		Duration:   d,
		Err:        err,
	})
}

// panicError carries a recovered panic and the stack at the point of recovery.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// traceback renders err for result.traceback: the stack for panics, the error chain otherwise.
func traceback(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%s\n\n%s", pe.Error(), pe.stack)
	}
	return err.Error()
}

func recoverPanic(errp *error) {
	if v := recover(); v != nil {
		*errp = &panicError{value: v, stack: debug.Stack()}
	}
}
