package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockJobStore implements the JobStore interface for testing
type MockJobStore struct {
	mu       sync.RWMutex
	jobs     map[uuid.UUID]*Job
	statuses map[uuid.UUID]JobStatus

	SaveFn         func(ctx context.Context, job *Job) error
	UpdateStatusFn func(ctx context.Context, jobID uuid.UUID, status JobStatus, attempts int, errorMsg string) error
	DeleteFn       func(ctx context.Context, jobID uuid.UUID) error
}

// NewMockJobStore creates a new MockJobStore with default implementations
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{
		jobs:     make(map[uuid.UUID]*Job),
		statuses: make(map[uuid.UUID]JobStatus),
	}
}

// SaveJob persists a job to the mock store
func (s *MockJobStore) SaveJob(ctx context.Context, job *Job) error {
	if s.SaveFn != nil {
		return s.SaveFn(ctx, job)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
	s.statuses[job.ID] = job.Status
	return nil
}

// UpdateJobStatus updates the status of a job in the mock store
func (s *MockJobStore) UpdateJobStatus(
	ctx context.Context,
	jobID uuid.UUID,
	status JobStatus,
	attempts int,
	errorMsg string,
) error {
	if s.UpdateStatusFn != nil {
		return s.UpdateStatusFn(ctx, jobID, status, attempts, errorMsg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[jobID] = status
	if job, ok := s.jobs[jobID]; ok {
		job.Status = status
		job.Attempts = attempts
		job.LastError = errorMsg
	}
	return nil
}

// DeleteJob removes a job from the mock store
func (s *MockJobStore) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	if s.DeleteFn != nil {
		return s.DeleteFn(ctx, jobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	delete(s.statuses, jobID)
	return nil
}

// JobStatusFor returns the last recorded status for a job, if any.
func (s *MockJobStore) JobStatusFor(jobID uuid.UUID) (JobStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[jobID]
	return status, ok
}

// SavedJob returns the stored record for a job, if any.
func (s *MockJobStore) SavedJob(jobID uuid.UUID) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

// SavedCount returns the number of job records currently held.
func (s *MockJobStore) SavedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
