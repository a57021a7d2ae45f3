package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Enqueue_DeduplicatesSameText(t *testing.T) {
	q := NewQueue(2)

	jobA, createdA := q.Enqueue(EnqueueRequest{ClientID: "tab-a", Text: "Hello"})
	jobB, createdB := q.Enqueue(EnqueueRequest{ClientID: "tab-b", Text: "Hello"})
	jobC, createdC := q.Enqueue(EnqueueRequest{ClientID: "tab-a", Text: "Hello"})

	require.True(t, createdA)
	require.False(t, createdB)
	require.False(t, createdC)
	assert.Equal(t, jobA.ID, jobB.ID)
	assert.Equal(t, jobA.ID, jobC.ID)
	assert.Equal(t, []string{"tab-a", "tab-b"}, jobC.Subscribers)
	assert.Equal(t, 1, q.Outstanding())
}

func TestQueue_Worker_DeliversResultToAllSubscribers(t *testing.T) {
	q := NewQueue(1)
	release := make(chan struct{})

	var mu sync.Mutex
	var finished []*TranslationJob
	q.Start(func(_ context.Context, job *TranslationJob) (string, error) {
		<-release
		return "こんにちは", nil
	}, func(job *TranslationJob) {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, job)
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{ClientID: "tab-a", Text: "Hello"})
	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusRunning
	}, time.Second, 10*time.Millisecond)

	q.Enqueue(EnqueueRequest{ClientID: "tab-b", Text: "Hello"})
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(finished) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	done := finished[0]
	mu.Unlock()
	assert.Equal(t, StatusSuccess, done.Status)
	assert.Equal(t, "こんにちは", done.Result)
	assert.Equal(t, []string{"tab-a", "tab-b"}, done.Subscribers)
	assert.Zero(t, q.Outstanding())
}

func TestQueue_Enqueue_AllowsRetryAfterFailure(t *testing.T) {
	q := NewQueue(1)

	var attempts int
	var mu sync.Mutex
	q.Start(func(_ context.Context, _ *TranslationJob) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return "", assert.AnError
		}
		return "ok", nil
	}, nil)
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{ClientID: "tab-a", Text: "retry"})
	require.True(t, created)

	require.Eventually(t, func() bool {
		got, ok := q.Get(first.ID)
		return ok && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	got, _ := q.Get(first.ID)
	assert.Equal(t, assert.AnError.Error(), got.Error)
	assert.ErrorIs(t, got.Cause, assert.AnError)

	second, created := q.Enqueue(EnqueueRequest{ClientID: "tab-a", Text: "retry"})
	require.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)

	require.Eventually(t, func() bool {
		got, ok := q.Get(second.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_PendingJobsRunAfterStart(t *testing.T) {
	q := NewQueue(1)
	job, _ := q.Enqueue(EnqueueRequest{Text: "queued before start"})

	q.Start(func(_ context.Context, job *TranslationJob) (string, error) {
		return job.Text, nil
	}, nil)
	defer q.Stop()

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_PrunesOldestTerminalJobs(t *testing.T) {
	q := NewQueue(1)
	q.maxJobs = 2
	q.Start(func(_ context.Context, _ *TranslationJob) (string, error) { return "x", nil }, nil)
	defer q.Stop()

	texts := []string{"a", "b", "c", "d"}
	for _, text := range texts {
		job, _ := q.Enqueue(EnqueueRequest{Text: text})
		require.Eventually(t, func() bool {
			got, ok := q.Get(job.ID)
			return !ok || got.Status == StatusSuccess
		}, time.Second, 5*time.Millisecond)
	}

	assert.LessOrEqual(t, len(q.List()), 2)
}

func TestQueue_StopCancelsRunningExecutor(t *testing.T) {
	q := NewQueue(1)
	started := make(chan struct{})
	q.Start(func(ctx context.Context, _ *TranslationJob) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}, nil)

	q.Enqueue(EnqueueRequest{Text: "slow"})
	<-started

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
