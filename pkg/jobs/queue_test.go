package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan string, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		done <- job.ID
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "p-1", Type: "summary"}))
	select {
	case id := <-done:
		assert.Equal(t, "p-1", id)
	case <-time.After(time.Second):
		t.Fatal("job was not processed")
	}
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 2 {
			return errors.New("boom")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "p-1"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "p-1"}))
}

func TestQueueRejectsDuplicatePendingJobs(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewQueue("dedupe", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-release
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "p-1", Type: "summary"}))
	<-started
	assert.ErrorIs(t, q.Enqueue(Job{ID: "p-1", Type: "summary"}), ErrDuplicate)
	assert.NoError(t, q.Enqueue(Job{ID: "p-2", Type: "summary"}))
	close(release)

	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, q.Enqueue(Job{ID: "p-1", Type: "summary"}))
}

func TestQueuePermanentFailureSkipsRetries(t *testing.T) {
	var attempts int32
	exhausted := make(chan error, 1)
	q := NewQueue("permanent", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return Permanent(errors.New("not approved"))
	}, QueueConfig{
		Workers:     1,
		RetryDelay:  time.Millisecond,
		OnExhausted: func(job Job, err error) { exhausted <- err },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "p-1"}))
	select {
	case err := <-exhausted:
		assert.True(t, IsPermanent(err))
		assert.EqualError(t, err, "not approved")
	case <-time.After(time.Second):
		t.Fatal("job was not abandoned")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	assert.Equal(t, 0, q.Pending())
}

func TestQueueAbandonsAfterMaxRetries(t *testing.T) {
	exhausted := make(chan Job, 1)
	q := NewQueue("exhaust", func(ctx context.Context, job Job) error {
		return errors.New("disk full")
	}, QueueConfig{
		Workers:     1,
		MaxRetries:  2,
		RetryDelay:  time.Millisecond,
		OnExhausted: func(job Job, err error) { exhausted <- job },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "p-1"}))
	select {
	case job := <-exhausted:
		assert.Equal(t, 3, job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not abandoned")
	}
}

func TestQueueHandlerSeesJobTimeout(t *testing.T) {
	deadline := make(chan bool, 1)
	q := NewQueue("timeout", func(ctx context.Context, job Job) error {
		_, ok := ctx.Deadline()
		deadline <- ok
		return nil
	}, QueueConfig{Workers: 1, JobTimeout: time.Second})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "p-1"}))
	assert.True(t, <-deadline)
}
