package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors returned by the queue
var (
	ErrQueueClosed = errors.New("job queue is closed")
	ErrQueueFull   = errors.New("job queue is full")
)

// JobStore defines the interface for persisting job records. Every job is
// written before it is offered for delivery, so retained completed and
// failed jobs stay inspectable after the process exits.
// Version: 1.0
type JobStore interface {
	// SaveJob persists a newly enqueued job.
	SaveJob(ctx context.Context, job *Job) error

	// UpdateJobStatus updates the delivery state of a job after an attempt.
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status JobStatus, attempts int, errorMsg string) error

	// DeleteJob purges a job record whose retention window has elapsed.
	DeleteJob(ctx context.Context, jobID uuid.UUID) error
}

// Enqueuer is the producer half of the queue contract. Services and the
// overdue scanner depend on this rather than on the concrete queue.
// Version: 1.0
type Enqueuer interface {
	// Enqueue persists and offers a new job for delivery with the given
	// per-job options. Returns the created job, or an error if the payload
	// cannot be serialized, the record cannot be persisted, or the queue
	// is full or closed.
	Enqueue(ctx context.Context, kind JobKind, payload any, opts EnqueueOptions) (*Job, error)
}

// Consumer is the consumption half of the queue contract: a delivery
// channel plus ack/fail per delivery.
// Version: 1.0
type Consumer interface {
	// Deliveries returns a read-only channel of jobs to process.
	Deliveries() <-chan *Job

	// Ack marks a delivered job as successfully processed.
	Ack(ctx context.Context, job *Job) error

	// Fail records a failed delivery attempt. The job is redelivered after
	// backoff until its attempts are exhausted or the cause is permanent,
	// then marked failed and retained per its options.
	Fail(ctx context.Context, job *Job, cause error) error
}

// DurableQueue is a job queue that persists every job through a JobStore
// and delivers pending jobs over a buffered channel. Delivery is
// at-least-once: a job whose attempt fails is offered again after backoff,
// so handlers must be idempotent-safe.
type DurableQueue struct {
	store  JobStore
	jobs   chan *Job
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	timers map[uuid.UUID]*time.Timer
}

// NewDurableQueue creates a new durable queue with the specified delivery
// buffer size.
func NewDurableQueue(store JobStore, size int, logger *slog.Logger) *DurableQueue {
	if size <= 0 {
		size = 100
	}

	return &DurableQueue{
		store:  store,
		jobs:   make(chan *Job, size),
		logger: logger.With("component", "durable_queue"),
		timers: make(map[uuid.UUID]*time.Timer),
	}
}

// Enqueue persists a new job and offers it for delivery.
func (q *DurableQueue) Enqueue(
	ctx context.Context,
	kind JobKind,
	payload any,
	opts EnqueueOptions,
) (*Job, error) {
	if err := kind.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %q", err, kind)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.New(),
		Kind:      kind,
		Payload:   body,
		Status:    JobStatusPending,
		Options:   opts.normalized(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Persist before offering: the record is the durable source of truth,
	// the channel only a delivery path.
	if err := q.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if err := q.offer(job); err != nil {
		return nil, err
	}

	q.logger.Debug("job enqueued",
		"job_id", job.ID,
		"job_kind", job.Kind,
		"queue_len", len(q.jobs),
		"queue_cap", cap(q.jobs))
	return job, nil
}

// offer places a job on the delivery channel without blocking.
func (q *DurableQueue) offer(job *Job) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()

	if closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// Deliveries returns a read-only channel for consuming jobs.
func (q *DurableQueue) Deliveries() <-chan *Job {
	return q.jobs
}

// Ack marks a delivered job as completed and schedules its purge according
// to the job's completed-retention window.
func (q *DurableQueue) Ack(ctx context.Context, job *Job) error {
	job.Attempts++
	job.Status = JobStatusCompleted
	job.UpdatedAt = time.Now().UTC()

	if err := q.store.UpdateJobStatus(ctx, job.ID, JobStatusCompleted, job.Attempts, ""); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	q.scheduleRetention(job.ID, job.Options.RetainCompleted)
	return nil
}

// Fail records a failed delivery attempt. Unless the cause is permanent or
// the job's attempts are exhausted, the job is redelivered after the
// backoff delay for the completed attempt count. Exhausted jobs are marked
// failed and retained per the failed-retention window; with RetainForever
// they are never purged.
func (q *DurableQueue) Fail(ctx context.Context, job *Job, cause error) error {
	job.Attempts++
	job.LastError = cause.Error()
	job.UpdatedAt = time.Now().UTC()

	permanent := errors.Is(cause, ErrPermanent)
	exhausted := job.Attempts >= job.Options.MaxAttempts

	if permanent || exhausted {
		job.Status = JobStatusFailed
		if err := q.store.UpdateJobStatus(ctx, job.ID, JobStatusFailed, job.Attempts, job.LastError); err != nil {
			return fmt.Errorf("failed to mark job failed: %w", err)
		}

		q.logger.Warn("job failed",
			"job_id", job.ID,
			"job_kind", job.Kind,
			"attempts", job.Attempts,
			"permanent", permanent,
			"error", cause)

		q.scheduleRetention(job.ID, job.Options.RetainFailed)
		return nil
	}

	job.Status = JobStatusPending
	if err := q.store.UpdateJobStatus(ctx, job.ID, JobStatusPending, job.Attempts, job.LastError); err != nil {
		return fmt.Errorf("failed to mark job for retry: %w", err)
	}

	delay := job.Options.Backoff.Delay(job.Attempts)
	q.logger.Info("job scheduled for retry",
		"job_id", job.ID,
		"job_kind", job.Kind,
		"attempts", job.Attempts,
		"delay", delay,
		"error", cause)

	q.scheduleRedelivery(job, delay)
	return nil
}

// scheduleRedelivery offers the job again after the given delay.
func (q *DurableQueue) scheduleRedelivery(job *Job, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("dropping retry for closed queue", "job_id", job.ID)
		return
	}

	q.timers[job.ID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, job.ID)
		q.mu.Unlock()

		if err := q.offer(job); err != nil {
			q.logger.Error("failed to redeliver job",
				"job_id", job.ID,
				"job_kind", job.Kind,
				"error", err)
		}
	})
}

// scheduleRetention purges the job record once its retention window has
// elapsed. A zero window purges immediately; RetainForever keeps the record.
func (q *DurableQueue) scheduleRetention(jobID uuid.UUID, window time.Duration) {
	if window == RetainForever {
		return
	}

	purge := func() {
		// Retention runs detached from any request, so a fresh context is used.
		if err := q.store.DeleteJob(context.Background(), jobID); err != nil {
			q.logger.Error("failed to purge job record", "job_id", jobID, "error", err)
		}
	}

	if window <= 0 {
		purge()
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.timers[jobID] = time.AfterFunc(window, func() {
		q.mu.Lock()
		delete(q.timers, jobID)
		q.mu.Unlock()
		purge()
	})
}

// Close closes the queue, preventing further enqueues and redeliveries and
// stopping any pending retry or retention timers.
func (q *DurableQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}

	close(q.jobs)
	q.logger.Info("job queue closed")
}

// Ensure DurableQueue satisfies both halves of the queue contract
var (
	_ Enqueuer = (*DurableQueue)(nil)
	_ Consumer = (*DurableQueue)(nil)
)
