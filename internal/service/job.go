package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/domain/model"
	apperrors "github.com/target/mmk-dataport/internal/errors"
	"github.com/target/mmk-dataport/internal/observability/metrics"
	"github.com/target/mmk-dataport/internal/observability/statsd"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo      core.JobRepository    // Required: job repository
	Resources core.ResourceRegistry // Required: registered resources
	Codecs    core.CodecRegistry    // Required: registered file formats
	Queue     core.Queue            // Required: dispatch queue
	Progress  core.ProgressStore    // Optional: live progress of running jobs
	Logger    *slog.Logger          // Optional: structured logger
	Metrics   statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// JobService is the request-side API of the job engine.
//
// This service manages:
// - Creating jobs in CREATED after registry existence checks
// - Dispatching jobs to the queue exactly once
// - Status queries scoped to the requester
// - Cancellation of created and running jobs.
type JobService struct {
	repo      core.JobRepository
	resources core.ResourceRegistry
	codecs    core.CodecRegistry
	queue     core.Queue
	progress  core.ProgressStore
	logger    *slog.Logger
	metrics   statsd.Sink
}

// StartJobRequest describes a create-and-dispatch call whose filters still need resolving.
type StartJobRequest struct {
	Direction  model.Direction
	Resource   model.ResourceDescriptor
	Params     url.Values
	FileFormat string
	SourceFile *string
	CreatedBy  *string
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	switch {
	case opts.Repo == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Resources == nil:
		return nil, errors.New("ResourceRegistry is required")
	case opts.Codecs == nil:
		return nil, errors.New("CodecRegistry is required")
	case opts.Queue == nil:
		return nil, errors.New("Queue is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized", "progress_cache", opts.Progress != nil)
	}

	return &JobService{
		repo:      opts.Repo,
		resources: opts.Resources,
		codecs:    opts.Codecs,
		queue:     opts.Queue,
		progress:  opts.Progress,
		logger:    logger,
		metrics:   opts.Metrics,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Create persists a new job in CREATED. It never dispatches.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.TransferJob, error) {
	if req == nil {
		return nil, apperrors.Validation("create job request is required")
	}
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	job, err := s.repo.Create(ctx, req)
	if err != nil {
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Direction:  string(req.Direction),
			Resource:   req.Resource.Key,
			Transition: metrics.TransitionCreate,
			Result:     metrics.ResultError,
			Err:        err,
		})
		return nil, fmt.Errorf("create job: %w", err)
	}

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Direction:  string(job.Direction),
		Resource:   job.Resource.Key,
		Transition: metrics.TransitionCreate,
		Result:     metrics.ResultSuccess,
	})
	if s.logger != nil {
		s.logger.DebugContext(ctx, "job created",
			"id", job.ID,
			"direction", job.Direction,
			"resource", job.Resource.Key,
			"file_format", job.FileFormat,
		)
	}
	return job, nil
}

// validateCreate performs existence checks only and normalises req in place.
func (s *JobService) validateCreate(req *model.CreateJobRequest) error {
	if !req.Direction.Valid() {
		return apperrors.ValidationField("direction",
			fmt.Sprintf("Unknown direction %q. Expected one of: export, import.", req.Direction))
	}
	req.Resource.Key = strings.TrimSpace(req.Resource.Key)
	if req.Resource.Key == "" {
		return apperrors.ValidationField("resource", "This field is required.")
	}
	if !s.resources.Has(req.Resource.Key) {
		return apperrors.ValidationField("resource", fmt.Sprintf("Unknown resource %q.", req.Resource.Key))
	}
	codec, err := s.codecs.Get(req.FileFormat)
	if err != nil {
		return err
	}
	req.FileFormat = codec.Format()

	if req.SourceFile != nil && strings.TrimSpace(*req.SourceFile) == "" {
		req.SourceFile = nil
	}
	switch req.Direction {
	case model.DirectionImport:
		if req.SourceFile == nil {
			return apperrors.ValidationField("source_file", "This field is required.")
		}
	case model.DirectionExport:
		if req.SourceFile != nil {
			return apperrors.ValidationField("source_file", "Only import jobs accept a source file.")
		}
	}
	req.Query = req.Query.Normalize()
	return nil
}

// Start resolves req.Params against the resource's filter schema, creates the job and dispatches it.
func (s *JobService) Start(ctx context.Context, req StartJobRequest) (*model.TransferJob, error) {
	resolver, err := s.resources.Resolver(strings.TrimSpace(req.Resource.Key))
	if err != nil {
		return nil, err
	}
	query, err := resolver.Resolve(req.Params)
	if err != nil {
		return nil, err
	}

	job, err := s.Create(ctx, &model.CreateJobRequest{
		Direction:  req.Direction,
		Resource:   req.Resource,
		Query:      query,
		FileFormat: req.FileFormat,
		SourceFile: req.SourceFile,
		CreatedBy:  req.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Dispatch(ctx, job.ID); err != nil {
		return nil, err
	}
	return job, nil
}

// Dispatch hands a CREATED job to the queue. Only the caller that wins the dispatch marker
// enqueues; every other call is a no-op. A failed enqueue clears the marker again.
func (s *JobService) Dispatch(ctx context.Context, id string) error {
	marked, err := s.repo.MarkDispatched(ctx, id)
	if err != nil {
		return fmt.Errorf("mark job %s dispatched: %w", id, err)
	}
	if !marked {
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: metrics.TransitionDispatch,
			Result:     metrics.ResultNoop,
		})
		if s.logger != nil {
			s.logger.DebugContext(ctx, "job not dispatched", "id", id, "reason", "not created or already dispatched")
		}
		return nil
	}

	if err := s.queue.Enqueue(ctx, id); err != nil {
		if clearErr := s.repo.ClearDispatched(ctx, id); clearErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to clear dispatch marker", "id", id, "error", clearErr)
		}
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: metrics.TransitionDispatch,
			Result:     metrics.ResultError,
			Err:        err,
		})
		return fmt.Errorf("enqueue job %s: %w", id, err)
	}

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: metrics.TransitionDispatch,
		Result:     metrics.ResultSuccess,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job dispatched", "id", id)
	}
	return nil
}

// GetStatus returns the poller view of a job visible to requester. Live progress from the
// progress store wins over persisted totals while the job runs.
func (s *JobService) GetStatus(ctx context.Context, id, requester string) (*model.JobView, error) {
	job, err := s.visibleJob(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	view := model.NewJobView(job, s.liveProgress(ctx, job))
	return &view, nil
}

// Cancel moves a created or running job to CANCELLED. Any other status yields an invalid_state error.
func (s *JobService) Cancel(ctx context.Context, id, requester string) (*model.JobView, error) {
	job, err := s.visibleJob(ctx, id, requester)
	if err != nil {
		return nil, err
	}

	cancelled, ok, err := s.repo.Cancel(ctx, core.CancelJobParams{ID: job.ID, Direction: job.Direction})
	if err != nil {
		return nil, fmt.Errorf("cancel job %s: %w", id, err)
	}
	if !ok {
		current, getErr := s.repo.GetByID(ctx, job.ID)
		if getErr == nil {
			job = current
		}
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Direction:  string(job.Direction),
			Resource:   job.Resource.Key,
			Transition: metrics.TransitionCancel,
			Result:     metrics.ResultNoop,
		})
		return nil, incorrectStatus(job)
	}

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Direction:  string(cancelled.Direction),
		Resource:   cancelled.Resource.Key,
		Transition: metrics.TransitionCancel,
		Result:     metrics.ResultSuccess,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job cancelled", "id", id, "previous_status", job.Status)
	}
	view := model.NewJobView(cancelled, nil)
	return &view, nil
}

// List returns jobs newest first.
func (s *JobService) List(ctx context.Context, params core.ListJobsParams) ([]*model.TransferJob, error) {
	jobs, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Stats counts jobs per status.
func (s *JobService) Stats(ctx context.Context) (model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

func (s *JobService) visibleJob(ctx context.Context, id, requester string) (*model.TransferJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, jobNotFound(id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if !job.VisibleTo(requester) {
		return nil, jobNotFound(id)
	}
	return job, nil
}

func (s *JobService) liveProgress(ctx context.Context, job *model.TransferJob) *model.Progress {
	if s.progress == nil || job.Status.Phase() != model.PhaseRunning {
		return nil
	}
	p, err := s.progress.Get(ctx, job.ID)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to read live progress", "id", job.ID, "error", err)
		}
		return nil
	}
	return p
}

func jobNotFound(id string) error {
	return apperrors.NotFoundf("Job %s not found.", id)
}

// incorrectStatus renders the invalid-state message for a job that left the cancellable statuses.
func incorrectStatus(job *model.TransferJob) error {
	expected := job.Direction.CancellableStatuses()
	quoted := make([]string, len(expected))
	for i, st := range expected {
		quoted[i] = "'" + string(st) + "'"
	}
	return apperrors.InvalidStatef("%s with id %s has incorrect status: `%s`. Expected statuses: [%s]",
		job.Direction.JobName(), job.ID, job.Status, strings.Join(quoted, ", "))
}
