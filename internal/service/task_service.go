// Package service implements the application's business operations on top
// of the store and queue abstractions.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/taskforge/taskforge-api/internal/domain"
	"github.com/taskforge/taskforge-api/internal/queue"
	"github.com/taskforge/taskforge-api/internal/store"
)

// Common sentinel errors for TaskService
var (
	// ErrTaskNotFound indicates that the task does not exist
	ErrTaskNotFound = errors.New("task not found")
)

// TaskServiceError wraps errors from the task service with context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "create_task", "update_task")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// It returns known sentinel errors directly without wrapping.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrTaskNotFound) {
		return ErrTaskNotFound
	}

	// Map store-level not-found to the service-level sentinel
	if errors.Is(err, store.ErrTaskNotFound) {
		return ErrTaskNotFound
	}

	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// CreateTaskInput carries the attributes of a task creation request.
type CreateTaskInput struct {
	Title       string
	Description string
	Priority    domain.TaskPriority
	DueDate     *time.Time
	OwnerID     uuid.UUID
}

// TaskService owns task mutation and decides when to enqueue propagation
// jobs.
type TaskService interface {
	// Create persists a new task and best-effort enqueues a status update job.
	Create(ctx context.Context, input CreateTaskInput) (*domain.Task, error)

	// Get retrieves a task by its id.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Delete removes a task by its id. Deletion enqueues nothing; only
	// status changes propagate through the queue.
	Delete(ctx context.Context, id uuid.UUID) error

	// Update applies a partial update to a task. A status update job is
	// enqueued only if the resulting status differs from the prior one.
	Update(ctx context.Context, id uuid.UUID, patch domain.TaskPatch) (*domain.Task, error)

	// UpdateStatus sets a task's status. This is the callback target for
	// the status update job handler.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error

	// FindOverdue returns all tasks whose due date is strictly before now,
	// irrespective of their current status. Pure read, no mutation.
	FindOverdue(ctx context.Context) ([]*domain.Task, error)
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	taskStore store.TaskStore
	enqueuer  queue.Enqueuer
	logger    *slog.Logger
	now       func() time.Time
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	taskStore store.TaskStore,
	enqueuer queue.Enqueuer,
	logger *slog.Logger,
) (TaskService, error) {
	if taskStore == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "taskStore cannot be nil",
		}
	}
	if enqueuer == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "enqueuer cannot be nil",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		taskStore: taskStore,
		enqueuer:  enqueuer,
		logger:    logger.With("component", "task_service"),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create persists a new task, then enqueues a status update job carrying
// the persisted values. The store write is authoritative: an enqueue
// failure is logged and never rolls back persistence.
func (s *taskServiceImpl) Create(
	ctx context.Context,
	input CreateTaskInput,
) (*domain.Task, error) {
	task, err := domain.NewTask(input.OwnerID, input.Title, input.Description, input.Priority, input.DueDate)
	if err != nil {
		s.logger.Error("failed to create task object",
			"error", err,
			"owner_id", input.OwnerID)
		return nil, NewTaskServiceError("create_task", "failed to create task object", err)
	}

	if err := s.taskStore.Create(ctx, task); err != nil {
		s.logger.Error("failed to save task",
			"error", err,
			"task_id", task.ID,
			"owner_id", input.OwnerID)
		return nil, NewTaskServiceError("create_task", "failed to save task", err)
	}

	s.logger.Info("task created",
		"task_id", task.ID,
		"owner_id", task.OwnerID,
		"status", task.Status)

	s.enqueueStatusUpdate(ctx, task)

	return task, nil
}

// Get retrieves a task by its id.
func (s *taskServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.taskStore.GetByID(ctx, id)
	if err != nil {
		return nil, NewTaskServiceError("get_task", "failed to load task", err)
	}
	return task, nil
}

// Delete removes a task by its id.
func (s *taskServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.taskStore.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete task",
			"error", err,
			"task_id", id)
		return NewTaskServiceError("delete_task", "failed to delete task", err)
	}

	s.logger.Info("task deleted", "task_id", id)
	return nil
}

// Update loads the task, applies only the fields present in the patch, and
// persists the result. A status update job is enqueued only if the status
// actually changed.
func (s *taskServiceImpl) Update(
	ctx context.Context,
	id uuid.UUID,
	patch domain.TaskPatch,
) (*domain.Task, error) {
	task, err := s.taskStore.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to load task for update",
			"error", err,
			"task_id", id)
		return nil, NewTaskServiceError("update_task", "failed to load task", err)
	}

	priorStatus := task.Status

	if err := task.ApplyPatch(patch); err != nil {
		s.logger.Error("failed to apply task patch",
			"error", err,
			"task_id", id)
		return nil, NewTaskServiceError("update_task", "invalid patch", err)
	}

	if err := s.taskStore.Update(ctx, task); err != nil {
		s.logger.Error("failed to save updated task",
			"error", err,
			"task_id", id)
		return nil, NewTaskServiceError("update_task", "failed to save task", err)
	}

	s.logger.Info("task updated",
		"task_id", task.ID,
		"status", task.Status)

	if task.Status != priorStatus {
		s.enqueueStatusUpdate(ctx, task)
	}

	return task, nil
}

// UpdateStatus loads the task, sets its status, and persists it.
func (s *taskServiceImpl) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.TaskStatus,
) error {
	task, err := s.taskStore.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to load task for status update",
			"error", err,
			"task_id", id,
			"target_status", status)
		return NewTaskServiceError("update_task_status", "failed to load task", err)
	}

	if err := task.ApplyPatch(domain.TaskPatch{Status: &status}); err != nil {
		s.logger.Error("failed to set task status",
			"error", err,
			"task_id", id,
			"target_status", status)
		return NewTaskServiceError("update_task_status", "invalid status", err)
	}

	if err := s.taskStore.Update(ctx, task); err != nil {
		s.logger.Error("failed to save task status",
			"error", err,
			"task_id", id,
			"status", status)
		return NewTaskServiceError("update_task_status", "failed to save task", err)
	}

	s.logger.Info("task status updated",
		"task_id", id,
		"status", status)
	return nil
}

// FindOverdue returns all tasks whose due date is strictly before now.
func (s *taskServiceImpl) FindOverdue(ctx context.Context) ([]*domain.Task, error) {
	tasks, err := s.taskStore.FindOverdue(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to query overdue tasks", "error", err)
		return nil, NewTaskServiceError("find_overdue", "failed to query overdue tasks", err)
	}
	return tasks, nil
}

// enqueueStatusUpdate enqueues a status update job for the task's current
// persisted status. Best effort: failures are logged, never returned.
// No retry policy is attached to this job kind.
func (s *taskServiceImpl) enqueueStatusUpdate(ctx context.Context, task *domain.Task) {
	payload := queue.StatusUpdatePayload{
		TaskID: task.ID.String(),
		Status: string(task.Status),
	}

	job, err := s.enqueuer.Enqueue(ctx, queue.JobKindStatusUpdate, payload, queue.EnqueueOptions{})
	if err != nil {
		s.logger.Warn("failed to enqueue status update job, task remains persisted",
			"error", err,
			"task_id", task.ID,
			"status", task.Status)
		return
	}

	s.logger.Debug("status update job enqueued",
		"job_id", job.ID,
		"task_id", task.ID,
		"status", task.Status)
}
