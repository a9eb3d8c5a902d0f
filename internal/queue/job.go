package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind identifies the type of asynchronous work a job carries.
// The set of kinds is closed; dispatch switches over it exhaustively.
type JobKind string

// Supported job kinds
const (
	// JobKindStatusUpdate propagates a task's status after a lifecycle write.
	JobKindStatusUpdate JobKind = "status_update"

	// JobKindOverdueNotification notifies the owner of a task that became
	// overdue and flips the task's status to overdue.
	JobKindOverdueNotification JobKind = "overdue_notification"
)

// ErrInvalidJobKind is returned when a job kind is not a member of the
// JobKind enum.
var ErrInvalidJobKind = errors.New("invalid job kind")

// Validate checks that the kind is a member of the enum.
func (k JobKind) Validate() error {
	switch k {
	case JobKindStatusUpdate, JobKindOverdueNotification:
		return nil
	default:
		return ErrInvalidJobKind
	}
}

// JobStatus represents the delivery state of a job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// RetainForever keeps a terminated job's record indefinitely instead of
// purging it after a retention window. Used for failed jobs that must stay
// visible for operator inspection.
const RetainForever = time.Duration(-1)

// BackoffPolicy describes the exponential delay applied between successive
// retry attempts of a failed job. The first retry waits Base, the second
// 2*Base, then 4*Base, and so on.
type BackoffPolicy struct {
	Base time.Duration
}

// maxBackoffShift caps the exponent so the doubling cannot overflow a
// time.Duration for any plausible attempt count.
const maxBackoffShift = 16

// Delay returns the delay to apply before redelivering a job that has
// completed the given number of attempts. Attempt counts below one and
// zero-valued policies yield no delay.
func (p BackoffPolicy) Delay(attempts int) time.Duration {
	if p.Base <= 0 || attempts < 1 {
		return 0
	}

	shift := attempts - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}

	return p.Base * time.Duration(1<<shift)
}

// EnqueueOptions carries the per-job delivery policy supplied at enqueue
// time. Retries are governed entirely by these options; consumers add no
// retry logic of their own.
type EnqueueOptions struct {
	// MaxAttempts is the total number of delivery attempts before the job
	// is marked failed. Zero or negative means a single attempt.
	MaxAttempts int

	// Backoff is the delay policy applied between attempts.
	Backoff BackoffPolicy

	// RetainCompleted is how long a completed job's record is kept before
	// being purged. Zero purges immediately; RetainForever keeps it.
	RetainCompleted time.Duration

	// RetainFailed is how long a failed job's record is kept after its
	// retries are exhausted. Zero purges immediately; RetainForever keeps it.
	RetainFailed time.Duration
}

// normalized returns a copy of the options with defaults applied.
func (o EnqueueOptions) normalized() EnqueueOptions {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	return o
}

// Job is a unit of asynchronous work tagged with a kind and carrying a
// JSON payload. The queue exclusively owns in-flight job state; consumers
// hold only an ephemeral handle while processing a delivery.
type Job struct {
	ID        uuid.UUID       `json:"id"`
	Kind      JobKind         `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Status    JobStatus       `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	Options   EnqueueOptions  `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// UnmarshalPayload decodes the job payload into the provided structure.
func (j *Job) UnmarshalPayload(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// StatusUpdatePayload is the body of a JobKindStatusUpdate job.
type StatusUpdatePayload struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// OverdueNotificationPayload is the body of a JobKindOverdueNotification job.
type OverdueNotificationPayload struct {
	TaskID string `json:"task_id"`
}

// ErrPermanent marks a job failure as permanent. A failure wrapping it is
// never retried, regardless of how many attempts remain.
var ErrPermanent = errors.New("permanent job failure")

// Permanent wraps err so the queue's failure path skips any remaining
// retries. Used for malformed payloads, where retrying cannot help.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}
