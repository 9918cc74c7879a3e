package jobrunner

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFeed keeps dispatched ids in memory; executing a job removes it from the feed.
type fakeFeed struct {
	mu      sync.Mutex
	pending []string
	notify  chan struct{}
}

func newFakeFeed(ids ...string) *fakeFeed {
	return &fakeFeed{pending: ids, notify: make(chan struct{}, 1)}
}

func (f *fakeFeed) ListDispatched(_ context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := min(limit, len(f.pending))
	return slices.Clone(f.pending[:n]), nil
}

func (f *fakeFeed) NotifyDispatched(_ context.Context, id string) error {
	f.mu.Lock()
	f.pending = append(f.pending, id)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeFeed) WaitForDispatch(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.notify:
		return nil
	}
}

// take removes id from the feed, reporting whether it was still dispatched. It stands in for the
// CREATED→RUNNING claim.
func (f *fakeFeed) take(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.Index(f.pending, id)
	if i < 0 {
		return false
	}
	f.pending = slices.Delete(f.pending, i, i+1)
	return true
}

type fakeExecutor struct {
	feed  *fakeFeed
	delay time.Duration

	mu     sync.Mutex
	counts map[string]int
	ran    chan string
}

func newFakeExecutor(feed *fakeFeed) *fakeExecutor {
	return &fakeExecutor{feed: feed, counts: make(map[string]int), ran: make(chan string, 64)}
}

func (e *fakeExecutor) Execute(_ context.Context, jobID string) {
	if !e.feed.take(jobID) {
		return
	}
	time.Sleep(e.delay)
	e.mu.Lock()
	e.counts[jobID]++
	e.mu.Unlock()
	e.ran <- jobID
}

func (e *fakeExecutor) count(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[id]
}

func collect(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	var got []string
	for range n {
		select {
		case id := <-ch:
			got = append(got, id)
		case <-time.After(5 * time.Second):
			t.Fatalf("expected %d executions, got %v", n, got)
		}
	}
	return got
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Executor: newFakeExecutor(newFakeFeed())})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Feed: newFakeFeed()})
	require.Error(t, err)

	r, err := NewRunner(RunnerOptions{Feed: newFakeFeed(), Executor: newFakeExecutor(newFakeFeed())})
	require.NoError(t, err)
	assert.Equal(t, 1, r.workers)
	assert.Equal(t, 5*time.Second, r.poll)
}

func TestRunner_ExecutesEveryDispatchedJobOnce(t *testing.T) {
	feed := newFakeFeed("a", "b", "c", "d", "e")
	exec := newFakeExecutor(feed)
	exec.delay = 10 * time.Millisecond

	r, err := NewRunner(RunnerOptions{Feed: feed, Executor: exec, Concurrency: 2, PollInterval: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	got := collect(t, exec.ran, 5)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, got)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	for _, id := range got {
		assert.Equal(t, 1, exec.count(id), "job %s executed more than once", id)
	}
}

func TestRunner_WakesOnDispatchNotification(t *testing.T) {
	feed := newFakeFeed()
	exec := newFakeExecutor(feed)

	r, err := NewRunner(RunnerOptions{Feed: feed, Executor: exec, PollInterval: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	// Let the runner find the feed empty and park on the notifier.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, feed.NotifyDispatched(context.Background(), "late"))

	assert.Equal(t, []string{"late"}, collect(t, exec.ran, 1))
}

func TestRunner_ClaimSkipsInFlightJobs(t *testing.T) {
	r, err := NewRunner(RunnerOptions{Feed: newFakeFeed(), Executor: newFakeExecutor(newFakeFeed())})
	require.NoError(t, err)

	assert.True(t, r.claim("a"))
	assert.False(t, r.claim("a"))
	assert.Equal(t, 1, r.inFlightCount())
	r.release("a")
	assert.True(t, r.claim("a"))
}
