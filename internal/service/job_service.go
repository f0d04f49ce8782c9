package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-file-tree/internal/event"
	"go-file-tree/internal/metrics"
	"go-file-tree/internal/model"
	"go-file-tree/pkg/apierror"
)

const (
	defaultJobQueueSize = 256

	// finishedJobTTL is how long a terminal job stays in memory. Older jobs
	// are served from the JobStore when one is configured.
	finishedJobTTL   = 15 * time.Minute
	jobEvictInterval = time.Minute

	interruptedJobReason = "interrupted by server restart"
)

// JobStore persists job snapshots so they outlive eviction and restarts.
type JobStore interface {
	Save(ctx context.Context, job model.JobData) error
	FindByID(ctx context.Context, jobID string) (model.JobData, error)
	FailUnfinished(ctx context.Context, reason string, finishedAt time.Time) (int, error)
}

type queuedMoveJob struct {
	jobID string
}

type moveJob struct {
	data      model.JobData
	principal model.Principal
	request   model.MoveBatchRequest
	finished  time.Time
}

// JobService runs move batches on a background worker and publishes their
// progress on the event bus.
type JobService struct {
	files   *FileTreeService
	bus     event.Bus
	store   JobStore
	metrics *metrics.Recorder
	mu      sync.RWMutex
	jobs    map[string]*moveJob
	queue   chan queuedMoveJob
	ttl     time.Duration
	now     func() time.Time
}

// NewJobService builds the job runner. store may be nil, in which case jobs
// are only kept in memory until they are evicted.
func NewJobService(files *FileTreeService, bus event.Bus, store JobStore, recorder *metrics.Recorder, queueSize int) *JobService {
	if queueSize <= 0 {
		queueSize = defaultJobQueueSize
	}

	return &JobService{
		files:   files,
		bus:     bus,
		store:   store,
		metrics: recorder,
		jobs:    map[string]*moveJob{},
		queue:   make(chan queuedMoveJob, queueSize),
		ttl:     finishedJobTTL,
		now:     time.Now,
	}
}

// Run processes queued jobs until ctx is cancelled. Jobs left unfinished by
// a previous process are marked failed first.
func (s *JobService) Run(ctx context.Context) {
	if s.store != nil {
		failed, err := s.store.FailUnfinished(ctx, interruptedJobReason, s.now().UTC())
		if err != nil && ctx.Err() == nil {
			slog.Error("failed to close interrupted jobs", "error", err)
		} else if failed > 0 {
			slog.Warn("marked interrupted jobs as failed", "count", failed)
		}
	}

	evict := time.NewTicker(jobEvictInterval)
	defer evict.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-evict.C:
			s.evictFinished(s.now())
		case next := <-s.queue:
			s.process(ctx, next.jobID)
		}
	}
}

// CreateMoveJob authorizes the request and queues it. Authorization failures
// are returned immediately instead of surfacing as a failed job.
func (s *JobService) CreateMoveJob(ctx context.Context, principal model.Principal, req model.MoveBatchRequest) (model.JobData, error) {
	planned, err := s.files.AuthorizeMove(ctx, principal, req)
	if err != nil {
		return model.JobData{}, err
	}

	job := &moveJob{
		data: model.JobData{
			JobID:        uuid.NewString(),
			UserID:       principal.ID,
			Status:       model.JobStatusQueued,
			TotalItems:   len(req.Items),
			BytesPlanned: planned,
			CreatedAt:    s.now().UTC().Format(time.RFC3339Nano),
		},
		principal: principal,
		request:   req,
	}

	created := cloneJob(job.data)
	s.persist(ctx, created)

	s.mu.Lock()
	s.jobs[job.data.JobID] = job
	s.mu.Unlock()

	select {
	case s.queue <- queuedMoveJob{jobID: job.data.JobID}:
	default:
		s.mu.Lock()
		delete(s.jobs, job.data.JobID)
		s.mu.Unlock()

		rejected := created
		rejected.Status = model.JobStatusFailed
		rejected.Error = "job queue full"
		rejected.FinishedAt = s.now().UTC().Format(time.RFC3339Nano)
		s.persist(ctx, rejected)
		return model.JobData{}, apierror.New(apierror.CodeJobQueueFull, "too many pending jobs", "", http.StatusServiceUnavailable)
	}

	return created, nil
}

// GetJob returns a job owned by principal. Jobs of other principals are
// reported as not found. Jobs no longer held in memory are loaded from the
// store.
func (s *JobService) GetJob(ctx context.Context, principal model.Principal, jobID string) (model.JobData, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	var data model.JobData
	if ok {
		data = cloneJob(job.data)
	}
	s.mu.RUnlock()

	if !ok {
		if s.store == nil {
			return model.JobData{}, apierror.NotFound(model.ErrJobNotFound.Error(), jobID)
		}

		stored, err := s.store.FindByID(ctx, jobID)
		if errors.Is(err, model.ErrJobNotFound) {
			return model.JobData{}, apierror.NotFound(model.ErrJobNotFound.Error(), jobID)
		}
		if err != nil {
			return model.JobData{}, apierror.IOError("failed to load job", err)
		}
		data = stored
	}

	if data.UserID != principal.ID {
		return model.JobData{}, apierror.NotFound(model.ErrJobNotFound.Error(), jobID)
	}
	return data, nil
}

func (s *JobService) process(ctx context.Context, jobID string) {
	s.mu.Lock()
	job, exists := s.jobs[jobID]
	if !exists {
		s.mu.Unlock()
		return
	}
	job.data.Status = model.JobStatusRunning
	job.data.StartedAt = s.now().UTC().Format(time.RFC3339Nano)
	principal, request := job.principal, job.request
	started := cloneJob(job.data)
	s.mu.Unlock()

	s.metrics.JobStarted()
	defer s.metrics.JobFinished()
	s.persist(ctx, started)
	s.publish(event.TypeJobStarted, started)

	lastProgress := -1
	report, err := s.files.MoveBatch(ctx, principal, request, func(transferred int64) {
		s.mu.Lock()
		job.data.BytesTransferred = transferred
		job.data.Progress = progressPercent(transferred, job.data.BytesPlanned)
		update := model.JobProgress{JobID: jobID, BytesTransferred: transferred, Progress: job.data.Progress}
		s.mu.Unlock()

		if update.Progress != lastProgress {
			lastProgress = update.Progress
			s.publishPayload(event.TypeJobProgress, jobID, principal.ID, update)
		}
	})

	s.mu.Lock()
	job.finished = s.now()
	job.data.FinishedAt = job.finished.UTC().Format(time.RFC3339Nano)
	switch {
	case err != nil:
		job.data.Status = model.JobStatusFailed
		job.data.Error = failureReason(err)
	case report.Failed == 0:
		job.data.Status = model.JobStatusCompleted
	case report.Succeeded > 0:
		job.data.Status = model.JobStatusPartial
	default:
		job.data.Status = model.JobStatusFailed
		job.data.Error = fmt.Sprintf("%d of %d items failed", report.Failed, report.Total)
	}
	if err == nil {
		job.data.Report = &report
		job.data.BytesPlanned = report.BytesPlanned
		job.data.BytesTransferred = report.BytesMoved
		job.data.Progress = 100
	}
	finished := cloneJob(job.data)
	s.mu.Unlock()

	s.persist(ctx, finished)
	if finished.Status == model.JobStatusFailed {
		slog.Warn("move job failed", "job_id", jobID, "user_id", principal.ID, "error", finished.Error)
		s.publish(event.TypeJobFailed, finished)
		return
	}
	s.publish(event.TypeJobCompleted, finished)
}

// evictFinished drops terminal jobs that finished more than ttl before now.
func (s *JobService) evictFinished(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, job := range s.jobs {
		if job.finished.IsZero() || now.Sub(job.finished) < s.ttl {
			continue
		}
		delete(s.jobs, id)
		evicted++
	}
	return evicted
}

func (s *JobService) persist(ctx context.Context, data model.JobData) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(context.WithoutCancel(ctx), data); err != nil {
		slog.Warn("failed to persist job", "job_id", data.JobID, "status", data.Status, "error", err)
	}
}

func (s *JobService) publish(eventType event.Type, data model.JobData) {
	s.publishPayload(eventType, data.JobID, data.UserID, data)
}

func (s *JobService) publishPayload(eventType event.Type, jobID string, userID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{Type: eventType, Subject: jobID, ActorID: userID, Payload: payload})
}

func cloneJob(data model.JobData) model.JobData {
	if data.Report != nil {
		report := *data.Report
		report.Items = append([]model.MoveItemResult(nil), data.Report.Items...)
		data.Report = &report
	}
	return data
}

func progressPercent(transferred int64, planned int64) int {
	if planned <= 0 {
		return 0
	}
	pct := int(transferred * 100 / planned)
	if pct > 99 {
		pct = 99
	}
	return pct
}
