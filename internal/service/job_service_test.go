package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-file-tree/internal/event"
	"go-file-tree/internal/model"
	"go-file-tree/pkg/apierror"
)

func waitTerminal(t *testing.T, events <-chan event.Event, jobID string) []event.Event {
	t.Helper()

	var seen []event.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Subject != jobID {
				continue
			}
			seen = append(seen, evt)
			if evt.Terminal() {
				return seen
			}
		case <-timeout:
			t.Fatalf("job %s did not finish", jobID)
			return nil
		}
	}
}

func TestJobService_MoveJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.write(t, "users/alice/a.txt", "aaaa")
	env.write(t, "users/alice/b.txt", "bb")
	env.write(t, "users/alice/dest/b.txt", "taken")

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	jobs := NewJobService(env.files, bus, nil, nil, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go jobs.Run(ctx)

	created, err := jobs.CreateMoveJob(ctx, alice, model.MoveBatchRequest{
		Items:       []string{"users/alice/a.txt", "users/alice/b.txt"},
		Destination: "users/alice/dest",
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, created.Status)
	assert.Equal(t, int64(6), created.BytesPlanned)

	seen := waitTerminal(t, events, created.JobID)
	require.Equal(t, event.TypeJobStarted, seen[0].Type)
	last := seen[len(seen)-1]
	require.Equal(t, event.TypeJobCompleted, last.Type)
	assert.Equal(t, "alice", last.ActorID)

	job, err := jobs.GetJob(ctx, alice, created.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPartial, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Report)
	assert.Equal(t, 1, job.Report.Succeeded)
	assert.Equal(t, int64(4), job.BytesTransferred)
	assert.Equal(t, "aaaa", env.read(t, "users/alice/dest/a.txt"))

	_, err = jobs.GetJob(ctx, bob, created.JobID)
	require.True(t, apierror.Is(err, apierror.CodeNotFound))
}

func TestJobService_RejectsUnauthorizedRequests(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	jobs := NewJobService(env.files, nil, nil, nil, 1)

	_, err := jobs.CreateMoveJob(context.Background(), alice, model.MoveBatchRequest{
		Items:       []string{"users/bob/a.txt"},
		Destination: "users/alice",
	})
	require.True(t, apierror.Is(err, apierror.CodeUnauthorized))
}

func TestJobService_QueueFull(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.write(t, "users/alice/a.txt", "a")
	jobs := NewJobService(env.files, nil, nil, nil, 1)
	req := model.MoveBatchRequest{Items: []string{"users/alice/a.txt"}, Destination: "users/alice"}

	_, err := jobs.CreateMoveJob(context.Background(), alice, req)
	require.NoError(t, err)

	_, err = jobs.CreateMoveJob(context.Background(), alice, req)
	require.True(t, apierror.Is(err, "JOB_QUEUE_FULL"))
}

func TestJobService_EvictsFinishedJobs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.write(t, "users/alice/a.txt", "aaaa")
	env.write(t, "users/alice/dest/.keep", "")

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	store := newMemoryJobStore()
	jobs := NewJobService(env.files, bus, store, nil, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go jobs.Run(ctx)

	created, err := jobs.CreateMoveJob(ctx, alice, model.MoveBatchRequest{
		Items:       []string{"users/alice/a.txt"},
		Destination: "users/alice/dest",
	})
	require.NoError(t, err)
	waitTerminal(t, events, created.JobID)

	assert.Zero(t, jobs.evictFinished(time.Now()))

	evicted := jobs.evictFinished(time.Now().Add(finishedJobTTL + time.Second))
	assert.Equal(t, 1, evicted)

	jobs.mu.RLock()
	assert.Empty(t, jobs.jobs)
	jobs.mu.RUnlock()

	job, err := jobs.GetJob(ctx, alice, created.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Report)
	assert.Equal(t, int64(4), job.Report.BytesMoved)

	_, err = jobs.GetJob(ctx, bob, created.JobID)
	require.True(t, apierror.Is(err, apierror.CodeNotFound))
}

func TestJobService_EvictedJobWithoutStoreIsGone(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.write(t, "users/alice/a.txt", "a")

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	jobs := NewJobService(env.files, bus, nil, nil, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go jobs.Run(ctx)

	created, err := jobs.CreateMoveJob(ctx, alice, model.MoveBatchRequest{
		Items:       []string{"users/alice/a.txt"},
		Destination: "users/alice",
	})
	require.NoError(t, err)
	waitTerminal(t, events, created.JobID)

	require.Equal(t, 1, jobs.evictFinished(time.Now().Add(finishedJobTTL)))
	_, err = jobs.GetJob(ctx, alice, created.JobID)
	require.True(t, apierror.Is(err, apierror.CodeNotFound))
}

func TestJobService_FailsInterruptedJobsOnStart(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	store := newMemoryJobStore(
		model.JobData{JobID: "running", UserID: "alice", Status: model.JobStatusRunning},
		model.JobData{JobID: "done", UserID: "alice", Status: model.JobStatusCompleted},
	)

	jobs := NewJobService(env.files, nil, store, nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		jobs.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		job, err := jobs.GetJob(ctx, alice, "running")
		return err == nil && job.Status == model.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	interrupted, err := jobs.GetJob(ctx, alice, "running")
	require.NoError(t, err)
	assert.Equal(t, interruptedJobReason, interrupted.Error)

	completed, err := jobs.GetJob(ctx, alice, "done")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, completed.Status)

	cancel()
	<-done
}

func TestJobService_QueueFullIsRecordedAsFailed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.write(t, "users/alice/a.txt", "a")
	store := newMemoryJobStore()
	jobs := NewJobService(env.files, nil, store, nil, 1)
	req := model.MoveBatchRequest{Items: []string{"users/alice/a.txt"}, Destination: "users/alice"}

	_, err := jobs.CreateMoveJob(context.Background(), alice, req)
	require.NoError(t, err)
	_, err = jobs.CreateMoveJob(context.Background(), alice, req)
	require.True(t, apierror.Is(err, "JOB_QUEUE_FULL"))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.jobs, 2)
	statuses := []string{}
	for _, job := range store.jobs {
		statuses = append(statuses, job.Status)
	}
	assert.ElementsMatch(t, []string{model.JobStatusQueued, model.JobStatusFailed}, statuses)
}

func TestProgressPercent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, progressPercent(10, 0))
	assert.Equal(t, 50, progressPercent(5, 10))
	assert.Equal(t, 99, progressPercent(10, 10))
}
