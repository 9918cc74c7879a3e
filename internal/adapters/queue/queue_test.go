package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-dataport/internal/mocks"
)

type recordingExecutor struct {
	mu  sync.Mutex
	ids []string
	ran chan string
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{ran: make(chan string, 16)}
}

func (r *recordingExecutor) Execute(_ context.Context, jobID string) {
	r.mu.Lock()
	r.ids = append(r.ids, jobID)
	r.mu.Unlock()
	r.ran <- jobID
}

func startRedis(t *testing.T) asynq.RedisClientOpt {
	t.Helper()
	mr := miniredis.RunT(t)
	return asynq.RedisClientOpt{Addr: mr.Addr()}
}

func newTestQueue(t *testing.T, redisOpt asynq.RedisClientOpt) *AsynqQueue {
	t.Helper()
	client := asynq.NewClient(redisOpt)
	t.Cleanup(func() { _ = client.Close() })
	q, err := NewAsynqQueue(AsynqQueueOptions{Client: client, Queue: "transfers", MaxRetry: 2})
	require.NoError(t, err)
	return q
}

func TestNewAsynqQueue(t *testing.T) {
	_, err := NewAsynqQueue(AsynqQueueOptions{})
	require.Error(t, err)

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: "localhost:0"})
	defer client.Close()
	q, err := NewAsynqQueue(AsynqQueueOptions{Client: client, Queue: "  "})
	require.NoError(t, err)
	assert.Equal(t, "transfers", q.queue)
}

func TestAsynqQueue_Enqueue(t *testing.T) {
	redisOpt := startRedis(t)
	q := newTestQueue(t, redisOpt)
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	const jobID = "0d6b8f2e-3c55-4c36-9f3c-7fb3a8f0f7a1"
	require.NoError(t, q.Enqueue(context.Background(), jobID))

	tasks, err := inspector.ListPendingTasks("transfers")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, jobID, tasks[0].ID)
	assert.Equal(t, TaskTypeRun, tasks[0].Type)
	assert.JSONEq(t, `{"job_id":"`+jobID+`"}`, string(tasks[0].Payload))
	assert.Equal(t, 2, tasks[0].MaxRetry)
}

func TestAsynqQueue_EnqueueDeduplicatesByJobID(t *testing.T) {
	redisOpt := startRedis(t)
	q := newTestQueue(t, redisOpt)
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "job-1"))
	require.NoError(t, q.Enqueue(ctx, "job-1"))
	require.NoError(t, q.Enqueue(ctx, "job-2"))

	tasks, err := inspector.ListPendingTasks("transfers")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload([]byte(`{"job_id":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", p.JobID)

	_, err = ParsePayload([]byte(`{"job_id":" "}`))
	require.Error(t, err)

	_, err = ParsePayload([]byte(`not json`))
	require.Error(t, err)
}

func TestWorker_ProcessTask(t *testing.T) {
	exec := newRecordingExecutor()
	w, err := NewWorker(WorkerOptions{Redis: asynq.RedisClientOpt{Addr: "localhost:0"}, Executor: exec})
	require.NoError(t, err)

	t.Run("runs the job", func(t *testing.T) {
		task, err := NewRunTask("job-1")
		require.NoError(t, err)
		require.NoError(t, w.ProcessTask(context.Background(), task))
		assert.Equal(t, "job-1", <-exec.ran)
	})

	t.Run("malformed payload skips retries", func(t *testing.T) {
		err := w.ProcessTask(context.Background(), asynq.NewTask(TaskTypeRun, []byte(`{}`)))
		require.Error(t, err)
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})
}

func TestNewWorker_Validation(t *testing.T) {
	_, err := NewWorker(WorkerOptions{Executor: newRecordingExecutor()})
	require.Error(t, err)
	_, err = NewWorker(WorkerOptions{Redis: asynq.RedisClientOpt{Addr: "localhost:0"}})
	require.Error(t, err)
}

func TestWorker_RunConsumesEnqueuedJobs(t *testing.T) {
	redisOpt := startRedis(t)
	q := newTestQueue(t, redisOpt)
	exec := newRecordingExecutor()

	w, err := NewWorker(WorkerOptions{Redis: redisOpt, Executor: exec, Queue: "transfers", Concurrency: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, q.Enqueue(context.Background(), "job-1"))

	select {
	case id := <-exec.ran:
		assert.Equal(t, "job-1", id)
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not run the enqueued job")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(15 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestPostgresQueue_Enqueue(t *testing.T) {
	_, err := NewPostgresQueue(nil)
	require.Error(t, err)

	ctrl := gomock.NewController(t)
	feed := mocks.NewMockDispatchFeed(ctrl)
	q, err := NewPostgresQueue(feed)
	require.NoError(t, err)

	ctx := context.Background()
	feed.EXPECT().NotifyDispatched(ctx, "job-1").Return(nil)
	require.NoError(t, q.Enqueue(ctx, "job-1"))

	feed.EXPECT().NotifyDispatched(ctx, "job-2").Return(errors.New("conn closed"))
	require.EqualError(t, q.Enqueue(ctx, "job-2"), "conn closed")
}
