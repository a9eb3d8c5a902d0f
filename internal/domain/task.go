package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task-specific validation errors
var (
	// ErrTaskIDEmpty is returned when a task ID is empty or nil.
	ErrTaskIDEmpty = errors.New("task ID cannot be empty")

	// ErrTaskTitleEmpty is returned when a task's title is empty.
	ErrTaskTitleEmpty = errors.New("task title cannot be empty")

	// ErrTaskOwnerIDEmpty is returned when a task's owner ID is empty or nil.
	ErrTaskOwnerIDEmpty = errors.New("task owner ID cannot be empty")
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values. No transition table is enforced: any status
// may follow any other. TaskStatusOverdue is only ever asserted through the
// overdue scanner and worker pathway, never derived by the store.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusOverdue    TaskStatus = "overdue"
)

// ErrInvalidTaskStatus is returned when a status value is not a member of
// the TaskStatus enum.
var ErrInvalidTaskStatus = errors.New("invalid task status")

// Validate checks that the status is a member of the enum.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusOverdue:
		return nil
	default:
		return ErrInvalidTaskStatus
	}
}

// TaskPriority represents the relative importance of a task.
type TaskPriority string

// Possible task priority values
const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// ErrInvalidTaskPriority is returned when a priority value is not a member
// of the TaskPriority enum.
var ErrInvalidTaskPriority = errors.New("invalid task priority")

// Validate checks that the priority is a member of the enum.
func (p TaskPriority) Validate() error {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return nil
	default:
		return ErrInvalidTaskPriority
	}
}

// Task represents a unit of work owned by a user, moving through lifecycle
// states until it is completed or deleted.
type Task struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	OwnerID     uuid.UUID    `json:"owner_id"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewTask creates a new Task with pending status and the given attributes.
// It generates a new UUID for the task ID and sets the creation/update
// timestamps. Returns an error if validation fails.
func NewTask(
	ownerID uuid.UUID,
	title, description string,
	priority TaskPriority,
	dueDate *time.Time,
) (*Task, error) {
	if priority == "" {
		priority = TaskPriorityMedium
	}

	task := &Task{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(title),
		Description: description,
		Status:      TaskStatusPending,
		Priority:    priority,
		DueDate:     dueDate,
		OwnerID:     ownerID,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}

	if strings.TrimSpace(t.Title) == "" {
		return ErrTaskTitleEmpty
	}

	if t.OwnerID == uuid.Nil {
		return ErrTaskOwnerIDEmpty
	}

	if err := t.Status.Validate(); err != nil {
		return err
	}

	return t.Priority.Validate()
}

// TaskPatch describes a partial update to a task. Only non-nil fields are
// applied.
type TaskPatch struct {
	Title       *string       `json:"title,omitempty"`
	Description *string       `json:"description,omitempty"`
	Status      *TaskStatus   `json:"status,omitempty"`
	Priority    *TaskPriority `json:"priority,omitempty"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
}

// ApplyPatch applies the non-nil fields of the patch to the task and bumps
// the UpdatedAt timestamp. The task is validated after the patch is applied;
// on validation failure the task is restored to its prior state.
func (t *Task) ApplyPatch(patch TaskPatch) error {
	prior := *t

	if patch.Title != nil {
		t.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.DueDate != nil {
		t.DueDate = patch.DueDate
	}

	if err := t.Validate(); err != nil {
		*t = prior
		return err
	}

	t.UpdatedAt = time.Now().UTC()
	return nil
}

// IsOverdue reports whether the task's due date is strictly before the given
// time. Tasks without a due date are never overdue. The current status is
// deliberately not consulted.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now)
}
