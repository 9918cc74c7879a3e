package queue

import (
	"context"
	"errors"

	"github.com/target/mmk-dataport/internal/core"
)

// Notifier publishes dispatch notifications. data.JobRepo satisfies it.
type Notifier interface {
	NotifyDispatched(ctx context.Context, id string) error
}

// PostgresQueue signals dispatched jobs with pg_notify. The dispatch marker on the job row is the
// queue itself; jobrunner.Runner picks the jobs up.
type PostgresQueue struct {
	notifier Notifier
}

var _ core.Queue = (*PostgresQueue)(nil)

// NewPostgresQueue constructs a PostgresQueue.
func NewPostgresQueue(n Notifier) (*PostgresQueue, error) {
	if n == nil {
		return nil, errors.New("dispatch notifier is required")
	}
	return &PostgresQueue{notifier: n}, nil
}

// Enqueue implements core.Queue.
func (q *PostgresQueue) Enqueue(ctx context.Context, jobID string) error {
	return q.notifier.NotifyDispatched(ctx, jobID)
}
