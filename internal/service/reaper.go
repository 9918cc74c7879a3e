package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-dataport/config"
	"github.com/target/mmk-dataport/internal/core"
	obserrors "github.com/target/mmk-dataport/internal/observability/errors"
	"github.com/target/mmk-dataport/internal/observability/metrics"
	"github.com/target/mmk-dataport/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required
	Queue   core.Queue            // Required: stale dispatched jobs are enqueued here again
	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// ReaperService recovers jobs whose worker went away. Each sweep fails running jobs with an
// expired lease and re-enqueues dispatched jobs nobody started within RedispatchAfter.
type ReaperService struct {
	repo    core.ReaperRepository
	queue   core.Queue
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// SweepReport counts the jobs one sweep touched.
type SweepReport struct {
	Expired      int64 `json:"expired"`
	Redispatched int64 `json:"redispatched"`
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("Queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "reaper_service")
	logger.Debug("ReaperService initialized",
		"interval", opts.Config.Interval,
		"redispatch_after", opts.Config.RedispatchAfter,
		"batch_size", opts.Config.BatchSize,
	)

	return &ReaperService{
		repo:    opts.Repo,
		queue:   opts.Queue,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run sweeps once after a short random delay and then every Interval until ctx ends.
// Cancellation returns nil; a deadline returns ctx.Err(). Sweep failures are logged, never returned.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	s.sleep(ctx, s.jitter())

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil {
			s.logSweepError(ctx, err)
		}
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// jitter spreads reapers that start together over a tenth of the interval.
func (s *ReaperService) jitter() time.Duration {
	limit := uint64(s.config.Interval / 10)
	if limit == 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(buf[:]) % limit) // #nosec G115 -- below Interval
}

func (s *ReaperService) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// reaperTask is one recovery pass of a sweep.
type reaperTask struct {
	operation string
	label     string
	run       func(context.Context) (int64, error)
}

type taskOutcome struct {
	operation string
	count     int64
	err       error
}

// Sweep runs every recovery pass once. A failing pass does not stop the others. When every
// failure is a context cancellation Sweep returns context.Canceled.
func (s *ReaperService) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	tasks := []reaperTask{
		{operation: metrics.OperationFailExpiredLeases, label: "fail expired leases", run: s.failExpiredLeases},
		{operation: metrics.OperationRedispatchStale, label: "redispatch stale jobs", run: s.redispatchStale},
	}

	var (
		report   SweepReport
		failures []error
		outcomes = make([]taskOutcome, 0, len(tasks))
		canceled = true
	)
	for _, task := range tasks {
		n, err := task.run(ctx)
		outcomes = append(outcomes, taskOutcome{operation: task.operation, count: n, err: err})
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", task.label, err))
			canceled = canceled && isContextCancellation(err)
		}
	}
	report.Expired, report.Redispatched = outcomes[0].count, outcomes[1].count
	s.recordSweep(outcomes, time.Since(start))

	switch {
	case len(failures) == 0:
		return report, nil
	case canceled:
		return report, context.Canceled
	default:
		return report, fmt.Errorf("reaper sweep: %w", errors.Join(failures...))
	}
}

// failExpiredLeases drains expired leases in BatchSize chunks.
func (s *ReaperService) failExpiredLeases(ctx context.Context) (int64, error) {
	var total int64
	for {
		n, err := s.repo.FailExpiredLeases(ctx, s.config.BatchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		if err = ctx.Err(); err != nil {
			return total, err
		}
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "failed jobs with expired leases", "count", total)
	}
	return total, nil
}

// redispatchStale re-enqueues jobs left CREATED after dispatch. A duplicate delivery is
// harmless because the executor claims a job with a conditional update. Enqueue errors are
// collected per batch so one bad id does not strand the rest.
func (s *ReaperService) redispatchStale(ctx context.Context) (int64, error) {
	params := core.RedispatchStaleParams{OlderThan: s.config.RedispatchAfter, BatchSize: s.config.BatchSize}
	var total int64
	for {
		ids, err := s.repo.RedispatchStale(ctx, params)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			break
		}

		var errs []error
		for _, id := range ids {
			if err = s.queue.Enqueue(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("enqueue %s: %w", id, err))
				continue
			}
			total++
		}
		if len(errs) > 0 {
			return total, errors.Join(errs...)
		}
		if err = ctx.Err(); err != nil {
			return total, err
		}
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "re-enqueued stale dispatched jobs", "count", total, "older_than", params.OlderThan)
	}
	return total, nil
}

// recordSweep emits one summary sample per sweep plus one per pass. Cancellations are not
// counted as errors.
func (s *ReaperService) recordSweep(outcomes []taskOutcome, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		total    int64
		firstErr error
	)
	for _, o := range outcomes {
		err := o.err
		if isContextCancellation(err) {
			err = nil
		}
		total += o.count
		if firstErr == nil {
			firstErr = err
		}

		tags := sweepTags(o.count, err)
		tags["operation"] = o.operation
		s.metrics.Count(metrics.NameReaperCleanupOperation, 1, tags)
		if o.count > 0 {
			s.metrics.Count(metrics.NameReaperJobsProcessed, o.count, metrics.CloneTags(tags))
		}
	}

	tags := sweepTags(total, firstErr)
	s.metrics.Count(metrics.NameReaperCleanup, 1, tags)
	if elapsed > 0 {
		s.metrics.Timing(metrics.NameReaperCleanupDuration, elapsed, metrics.CloneTags(tags))
	}
	if firstErr == nil {
		s.metrics.Gauge(metrics.NameReaperLastSuccess, float64(time.Now().Unix()), nil)
	}
}

func sweepTags(count int64, err error) map[string]string {
	switch {
	case err != nil:
		tags := map[string]string{"result": metrics.ResultError}
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
		return tags
	case count == 0:
		return map[string]string{"result": metrics.ResultNoop}
	default:
		return map[string]string{"result": metrics.ResultSuccess}
	}
}

func (s *ReaperService) logSweepError(ctx context.Context, err error) {
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, "reaper sweep interrupted", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, "reaper sweep failed", "error", err)
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
