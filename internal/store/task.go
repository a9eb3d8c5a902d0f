package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/taskforge/taskforge-api/internal/domain"
)

// TaskStore defines the interface for task data persistence.
// Version: 1.0
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns validation errors if the task data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update saves changes to an existing task.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task from the store by its ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// FindOverdue retrieves all tasks whose due date is strictly before the
	// given time, regardless of their current status. Tasks without a due
	// date are never returned. This is a pure read and performs no writes.
	FindOverdue(ctx context.Context, now time.Time) ([]*domain.Task, error)

	// FindByIDs retrieves the tasks whose id is a member of the given set.
	// Missing ids are simply absent from the result; no error is returned
	// for them. An empty id set yields an empty result.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Task, error)

	// BulkUpdateStatus sets the status of every task in the id set with a
	// single write. Ids that do not exist are silently skipped. The write
	// is all-or-nothing at the storage layer.
	BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status domain.TaskStatus) error

	// BulkDeleteByIDs removes every task in the id set with a single write.
	// Ids that do not exist are silently skipped.
	BulkDeleteByIDs(ctx context.Context, ids []uuid.UUID) error

	// WithTx returns a new TaskStore instance that uses the provided
	// transaction. The transaction should be created and managed by the
	// caller (typically a service).
	WithTx(tx *sql.Tx) TaskStore
}
