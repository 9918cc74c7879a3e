// Package queue provides the dispatch queue backends that hand job ids to background executors.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/target/mmk-dataport/internal/core"
)

// TaskTypeRun is the asynq task type carrying one job id.
const TaskTypeRun = "transfer:run"

// Payload is the body of a TaskTypeRun task.
type Payload struct {
	JobID string `json:"job_id"`
}

// AsynqQueueOptions configures AsynqQueue.
type AsynqQueueOptions struct {
	Client   *asynq.Client // Required
	Queue    string        // Optional: asynq queue name (default "transfers")
	MaxRetry int           // Optional: retry budget per task
	Logger   *slog.Logger
}

// AsynqQueue enqueues job ids on a Redis-backed asynq queue. The job id doubles as the task id so
// repeated enqueues of a job that is still queued collapse into one task.
type AsynqQueue struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	logger   *slog.Logger
}

var _ core.Queue = (*AsynqQueue)(nil)

// NewAsynqQueue constructs an AsynqQueue.
func NewAsynqQueue(opts AsynqQueueOptions) (*AsynqQueue, error) {
	if opts.Client == nil {
		return nil, errors.New("asynq client is required")
	}
	name := strings.TrimSpace(opts.Queue)
	if name == "" {
		name = "transfers"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqQueue{
		client:   opts.Client,
		queue:    name,
		maxRetry: max(opts.MaxRetry, 0),
		logger:   logger.With("component", "asynq_queue"),
	}, nil
}

// NewRunTask builds the task for jobID.
func NewRunTask(jobID string) (*asynq.Task, error) {
	body, err := json.Marshal(Payload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeRun, body), nil
}

// Enqueue implements core.Queue.
func (q *AsynqQueue) Enqueue(ctx context.Context, jobID string) error {
	task, err := NewRunTask(jobID)
	if err != nil {
		return err
	}

	info, err := q.client.EnqueueContext(ctx, task,
		asynq.TaskID(jobID),
		asynq.Queue(q.queue),
		asynq.MaxRetry(q.maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		q.logger.DebugContext(ctx, "job already queued", "job_id", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}

	q.logger.DebugContext(ctx, "job enqueued", "job_id", jobID, "queue", info.Queue)
	return nil
}

// ParsePayload decodes a TaskTypeRun payload.
func ParsePayload(body []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(p.JobID) == "" {
		return Payload{}, errors.New("payload has no job_id")
	}
	return p, nil
}
