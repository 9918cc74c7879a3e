// Package jobrunner runs dispatched transfer jobs straight from the job table when the postgres
// queue backend is selected.
package jobrunner

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/data"
	domainjob "github.com/target/mmk-dataport/internal/domain/job"
)

// Executor runs one job to completion. service.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, jobID string)
}

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	DB       *sql.DB
	Executor Executor // Required
	Logger   *slog.Logger

	Concurrency  int           // number of worker goroutines; defaults to 1
	PollInterval time.Duration // fallback poll when no notification arrives; defaults to 5s

	// Optional dependency injections (useful for tests/decoupling)
	Feed     core.DispatchFeed
	Notifier domainjob.Notifier
}

// Runner reserves dispatched jobs from the job table and executes them with a fixed pool of
// workers. It wakes on dispatch notifications and polls every PollInterval otherwise.
type Runner struct {
	feed     core.DispatchFeed
	exec     Executor
	notifier domainjob.Notifier
	logger   *slog.Logger
	workers  int
	poll     time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewRunner wires the dispatch feed and constructs a job runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Feed == nil {
		return nil, errors.New("either DB or Feed must be provided")
	}
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}

	feed := opts.Feed
	if feed == nil {
		feed = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: logger})
	}

	notifier := opts.Notifier
	if notifier == nil {
		n, err := domainjob.NewNotifier(domainjob.NotifierOptions{Waiter: feed, WaitWindow: poll})
		if err != nil {
			return nil, err
		}
		notifier = n
	}

	return &Runner{
		feed:     feed,
		exec:     opts.Executor,
		notifier: notifier,
		logger:   logger.With("component", "job_runner"),
		workers:  workers,
		poll:     poll,
		inFlight: make(map[string]struct{}),
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "workers", r.workers, "poll_interval", r.poll)

	unsub, notify := r.notifier.Subscribe()
	defer unsub()

	ids := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(ids)
		r.reserveLoop(gctx, notify, ids)
		return nil
	})
	for range r.workers {
		g.Go(func() error {
			r.workerLoop(gctx, ids)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// reserveLoop lists dispatched jobs and feeds them to the workers. Sends block until a worker is
// free, so at most one listing runs ahead of the pool.
func (r *Runner) reserveLoop(ctx context.Context, notify <-chan struct{}, out chan<- string) {
	for ctx.Err() == nil {
		sent, err := r.reserveBatch(ctx, out)
		if err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "list dispatched jobs failed", "error", err)
		}
		if sent > 0 {
			continue
		}
		if !r.waitForNotify(ctx, notify) {
			return
		}
	}
}

func (r *Runner) reserveBatch(ctx context.Context, out chan<- string) (int, error) {
	ids, err := r.feed.ListDispatched(ctx, r.workers+r.inFlightCount())
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, id := range ids {
		if !r.claim(id) {
			continue
		}
		select {
		case out <- id:
			sent++
		case <-ctx.Done():
			r.release(id)
			return sent, nil
		}
	}
	return sent, nil
}

func (r *Runner) workerLoop(ctx context.Context, ids <-chan string) {
	for id := range ids {
		r.exec.Execute(ctx, id)
		r.release(id)
	}
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-notify:
		return ok
	}
}

// claim marks id as handed to a worker; a job stays listed as dispatched until its executor
// starts it, so ids already in flight are skipped.
func (r *Runner) claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inFlight[id]; ok {
		return false
	}
	r.inFlight[id] = struct{}{}
	return true
}

func (r *Runner) inFlightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	delete(r.inFlight, id)
	r.mu.Unlock()
}
