package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
)

// Executor runs one job to completion. service.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, jobID string)
}

// WorkerOptions configures Worker.
type WorkerOptions struct {
	Redis       asynq.RedisConnOpt // Required
	Executor    Executor           // Required
	Queue       string             // Optional: asynq queue name (default "transfers")
	Concurrency int                // Optional: parallel tasks (default 1)
	Logger      *slog.Logger
}

// Worker consumes TaskTypeRun tasks with an asynq server and hands each job id to the executor.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	exec   Executor
	logger *slog.Logger
}

// NewWorker constructs a Worker.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis connection option is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}
	name := strings.TrimSpace(opts.Queue)
	if name == "" {
		name = "transfers"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "asynq_worker")

	server := asynq.NewServer(opts.Redis, asynq.Config{
		Concurrency: max(opts.Concurrency, 1),
		Queues:      map[string]int{name: 1},
		Logger:      newAsynqLogger(logger),
	})

	w := &Worker{server: server, mux: asynq.NewServeMux(), exec: opts.Executor, logger: logger}
	w.mux.HandleFunc(TaskTypeRun, w.ProcessTask)
	return w, nil
}

// ProcessTask handles one TaskTypeRun task. Malformed payloads are not retried; executor outcomes
// are recorded on the job itself so the task always succeeds once the payload decodes.
func (w *Worker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	p, err := ParsePayload(task.Payload())
	if err != nil {
		w.logger.WarnContext(ctx, "dropping malformed task", "type", task.Type(), "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	w.exec.Execute(ctx, p.JobID)
	return nil
}

// Run processes tasks until ctx is cancelled, then shuts the server down and waits for active
// tasks to finish.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "starting asynq worker")
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.InfoContext(context.Background(), "asynq worker stopped")
	return ctx.Err()
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func newAsynqLogger(l *slog.Logger) *asynqLogger { return &asynqLogger{logger: l} }

func (a *asynqLogger) Debug(args ...any) { a.logger.Debug(fmt.Sprint(args...)) }
func (a *asynqLogger) Info(args ...any)  { a.logger.Info(fmt.Sprint(args...)) }
func (a *asynqLogger) Warn(args ...any)  { a.logger.Warn(fmt.Sprint(args...)) }
func (a *asynqLogger) Error(args ...any) { a.logger.Error(fmt.Sprint(args...)) }
func (a *asynqLogger) Fatal(args ...any) { a.logger.Error(fmt.Sprint(args...)) }
