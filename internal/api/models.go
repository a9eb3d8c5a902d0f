package api

import (
	"time"

	"github.com/taskforge/taskforge-api/internal/domain"
)

// Common request/response structures

// CreateTaskRequest defines the payload for the task creation endpoint.
type CreateTaskRequest struct {
	Title       string     `json:"title"                 validate:"required,max=500"`
	Description string     `json:"description,omitempty" validate:"max=5000"`
	Priority    string     `json:"priority,omitempty"    validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	OwnerID     string     `json:"owner_id"              validate:"required,uuid"`
}

// UpdateTaskRequest defines the payload for the partial task update
// endpoint. Absent fields are left untouched.
type UpdateTaskRequest struct {
	Title       *string    `json:"title,omitempty"       validate:"omitempty,max=500"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	Status      *string    `json:"status,omitempty"      validate:"omitempty,oneof=pending in_progress completed overdue"`
	Priority    *string    `json:"priority,omitempty"    validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// BatchRequest defines the payload for the bulk operation endpoint.
type BatchRequest struct {
	TaskIDs      []string `json:"task_ids"       validate:"required,min=1,max=100,dive,uuid"`
	Action       string   `json:"action"         validate:"required,oneof=complete delete"`
	ActingUserID string   `json:"acting_user_id" validate:"required,uuid"`
}

// TaskResponse represents the response data for a task
type TaskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	OwnerID     string     `json:"owner_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BatchOutcomeResponse represents the per-task outcome of a bulk operation.
type BatchOutcomeResponse struct {
	TaskID  string `json:"task_id"`
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResponse wraps the outcomes of one bulk operation call.
type BatchResponse struct {
	Outcomes []BatchOutcomeResponse `json:"outcomes"`
}

// taskToResponse transforms a domain task into its response representation.
func taskToResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID.String(),
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		Priority:    string(task.Priority),
		DueDate:     task.DueDate,
		OwnerID:     task.OwnerID.String(),
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

// outcomesToResponse transforms batch outcomes into their response form.
func outcomesToResponse(outcomes []domain.BatchOutcome) BatchResponse {
	resp := BatchResponse{Outcomes: make([]BatchOutcomeResponse, 0, len(outcomes))}
	for _, outcome := range outcomes {
		resp.Outcomes = append(resp.Outcomes, BatchOutcomeResponse{
			TaskID:  outcome.TaskID.String(),
			Success: outcome.Success,
			Result:  outcome.Result,
			Error:   outcome.Error,
		})
	}
	return resp
}
