package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskforge/taskforge-api/internal/domain"
	"github.com/taskforge/taskforge-api/internal/queue"
	"github.com/taskforge/taskforge-api/internal/store"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// MockTaskStore implements store.TaskStore backed by a map, with
// overridable functions per operation.
type MockTaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task

	CreateFn           func(ctx context.Context, task *domain.Task) error
	GetByIDFn          func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	UpdateFn           func(ctx context.Context, task *domain.Task) error
	FindOverdueFn      func(ctx context.Context, now time.Time) ([]*domain.Task, error)
	FindByIDsFn        func(ctx context.Context, ids []uuid.UUID) ([]*domain.Task, error)
	BulkUpdateStatusFn func(ctx context.Context, ids []uuid.UUID, status domain.TaskStatus) error
	BulkDeleteFn       func(ctx context.Context, ids []uuid.UUID) error

	BulkUpdateCalls int
	BulkDeleteCalls int
}

func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (s *MockTaskStore) Put(task *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *task
	s.tasks[task.ID] = &copied
}

func (s *MockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, task)
	}
	s.Put(task)
	return nil
}

func (s *MockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if s.GetByIDFn != nil {
		return s.GetByIDFn(ctx, id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (s *MockTaskStore) Update(ctx context.Context, task *domain.Task) error {
	if s.UpdateFn != nil {
		return s.UpdateFn(ctx, task)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *MockTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *MockTaskStore) FindOverdue(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	if s.FindOverdueFn != nil {
		return s.FindOverdueFn(ctx, now)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var overdue []*domain.Task
	for _, task := range s.tasks {
		if task.IsOverdue(now) {
			copied := *task
			overdue = append(overdue, &copied)
		}
	}
	return overdue, nil
}

func (s *MockTaskStore) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Task, error) {
	if s.FindByIDsFn != nil {
		return s.FindByIDsFn(ctx, ids)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		if task, ok := s.tasks[id]; ok {
			copied := *task
			found = append(found, &copied)
		}
	}
	return found, nil
}

func (s *MockTaskStore) BulkUpdateStatus(
	ctx context.Context,
	ids []uuid.UUID,
	status domain.TaskStatus,
) error {
	s.mu.Lock()
	s.BulkUpdateCalls++
	s.mu.Unlock()
	if s.BulkUpdateStatusFn != nil {
		return s.BulkUpdateStatusFn(ctx, ids, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if task, ok := s.tasks[id]; ok {
			task.Status = status
		}
	}
	return nil
}

func (s *MockTaskStore) BulkDeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	s.BulkDeleteCalls++
	s.mu.Unlock()
	if s.BulkDeleteFn != nil {
		return s.BulkDeleteFn(ctx, ids)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.tasks, id)
	}
	return nil
}

func (s *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return s
}

// enqueuedJob records one call to MockEnqueuer.Enqueue.
type enqueuedJob struct {
	Kind    queue.JobKind
	Payload json.RawMessage
	Options queue.EnqueueOptions
}

// MockEnqueuer implements queue.Enqueuer and records every enqueued job.
type MockEnqueuer struct {
	mu   sync.Mutex
	jobs []enqueuedJob

	EnqueueFn func(ctx context.Context, kind queue.JobKind, payload any, opts queue.EnqueueOptions) (*queue.Job, error)
}

func NewMockEnqueuer() *MockEnqueuer {
	return &MockEnqueuer{}
}

func (e *MockEnqueuer) Enqueue(
	ctx context.Context,
	kind queue.JobKind,
	payload any,
	opts queue.EnqueueOptions,
) (*queue.Job, error) {
	if e.EnqueueFn != nil {
		return e.EnqueueFn(ctx, kind, payload, opts)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, enqueuedJob{Kind: kind, Payload: body, Options: opts})

	return &queue.Job{
		ID:      uuid.New(),
		Kind:    kind,
		Payload: body,
		Status:  queue.JobStatusPending,
		Options: opts,
	}, nil
}

func (e *MockEnqueuer) Enqueued() []enqueuedJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]enqueuedJob, len(e.jobs))
	copy(out, e.jobs)
	return out
}
