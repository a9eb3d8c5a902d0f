package domain

import (
	"errors"

	"github.com/google/uuid"
)

// BatchAction identifies the bulk mutation a batch call performs.
type BatchAction string

// Supported batch actions
const (
	BatchActionComplete BatchAction = "complete"
	BatchActionDelete   BatchAction = "delete"
)

// ErrInvalidBatchAction is returned when a batch action is not a member of
// the BatchAction enum.
var ErrInvalidBatchAction = errors.New("invalid batch action")

// Validate checks that the action is a member of the enum.
func (a BatchAction) Validate() error {
	switch a {
	case BatchActionComplete, BatchActionDelete:
		return nil
	default:
		return ErrInvalidBatchAction
	}
}

// BatchOutcome is the per-id result of a batch operation. Exactly one
// outcome is produced for every requested id, whether or not the id existed.
// Success carries a Result message; failure carries an Error message.
type BatchOutcome struct {
	TaskID  uuid.UUID `json:"task_id"`
	Success bool      `json:"success"`
	Result  string    `json:"result,omitempty"`
	Error   string    `json:"error,omitempty"`
}
