package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"go-file-tree/internal/model"
)

type mockAuditSink struct {
	mock.Mock
}

func (m *mockAuditSink) Write(ctx context.Context, event model.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type mockTrashStore struct {
	mock.Mock
}

func (m *mockTrashStore) Create(ctx context.Context, record model.TrashRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *mockTrashStore) FindByID(ctx context.Context, id string) (model.TrashRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.TrashRecord), args.Error(1)
}

func (m *mockTrashStore) ListByUser(ctx context.Context, userID string) ([]model.TrashRecord, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.TrashRecord), args.Error(1)
}

func (m *mockTrashStore) ListExpired(ctx context.Context, now time.Time) ([]model.TrashRecord, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]model.TrashRecord), args.Error(1)
}

func (m *mockTrashStore) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockPrincipalStore struct {
	mock.Mock
}

func (m *mockPrincipalStore) FindByID(ctx context.Context, id string) (model.Principal, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Principal), args.Error(1)
}

// recordingSink keeps every audit event in memory.
type recordingSink struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (s *recordingSink) Write(_ context.Context, event model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions := make([]string, 0, len(s.events))
	for _, event := range s.events {
		actions = append(actions, event.Action)
	}
	return actions
}

func (s *recordingSink) last() model.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

// memoryJobStore keeps job snapshots in a map.
type memoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]model.JobData
}

func newMemoryJobStore(seed ...model.JobData) *memoryJobStore {
	store := &memoryJobStore{jobs: map[string]model.JobData{}}
	for _, job := range seed {
		store.jobs[job.JobID] = job
	}
	return store
}

func (s *memoryJobStore) Save(_ context.Context, job model.JobData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = cloneJob(job)
	return nil
}

func (s *memoryJobStore) FindByID(_ context.Context, jobID string) (model.JobData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return model.JobData{}, model.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *memoryJobStore) FailUnfinished(_ context.Context, reason string, finishedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed := 0
	for id, job := range s.jobs {
		if job.Status != model.JobStatusQueued && job.Status != model.JobStatusRunning {
			continue
		}
		job.Status = model.JobStatusFailed
		job.Error = reason
		job.FinishedAt = finishedAt.Format(time.RFC3339Nano)
		s.jobs[id] = job
		failed++
	}
	return failed, nil
}
