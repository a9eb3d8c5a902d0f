// Package worker consumes jobs from the queue with bounded concurrency and
// dispatches them by kind to the task lifecycle service.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/taskforge/taskforge-api/internal/domain"
	"github.com/taskforge/taskforge-api/internal/queue"
)

// TaskLifecycle defines the lifecycle operations job handlers call back
// into. This is a narrow view of the task service to avoid a dependency on
// the full service package.
type TaskLifecycle interface {
	// Update applies a partial update to a task.
	Update(ctx context.Context, id uuid.UUID, patch domain.TaskPatch) (*domain.Task, error)

	// UpdateStatus sets a task's status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error
}

// Notifier delivers overdue notifications to task owners. The actual
// delivery channel (email, push) lives outside this core.
type Notifier interface {
	NotifyOverdue(ctx context.Context, taskID uuid.UUID) error
}

// LogNotifier is a Notifier that only records the notification in the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a Notifier that logs instead of delivering.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "log_notifier")}
}

// NotifyOverdue logs the overdue notification.
func (n *LogNotifier) NotifyOverdue(ctx context.Context, taskID uuid.UUID) error {
	n.logger.Info("task overdue notification", "task_id", taskID)
	return nil
}

// Config holds configuration options for the worker
type Config struct {
	// Concurrency determines how many jobs may be in flight simultaneously.
	// If zero or negative, defaults to 10.
	Concurrency int
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		Concurrency: 10,
	}
}

// Worker consumes deliveries from the job queue and processes them with
// bounded concurrency. Each in-flight job occupies one of Concurrency
// goroutines; no ordering is guaranteed between jobs, including jobs
// targeting the same task. Retries are entirely governed by the options
// supplied at enqueue time; the worker adds no retry logic of its own.
type Worker struct {
	consumer    queue.Consumer
	lifecycle   TaskLifecycle
	notifier    Notifier
	concurrency int

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// New creates a new Worker consuming from the given queue.
func New(
	consumer queue.Consumer,
	lifecycle TaskLifecycle,
	notifier Notifier,
	config Config,
	logger *slog.Logger,
) *Worker {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConfig().Concurrency
		logger.Warn("invalid worker concurrency specified, using default",
			"specified", config.Concurrency,
			"default", concurrency)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		consumer:    consumer,
		lifecycle:   lifecycle,
		notifier:    notifier,
		concurrency: concurrency,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With("component", "worker"),
	}
}

// Start launches the worker goroutines.
func (w *Worker) Start() {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
	w.logger.Info("worker started", "concurrency", w.concurrency)
}

// Stop signals the worker goroutines to stop and waits for in-flight jobs
// to finish. Jobs already being processed run to completion.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// run processes deliveries until the context is cancelled or the queue is
// closed.
func (w *Worker) run(id int) {
	defer w.wg.Done()

	w.logger.Debug("starting worker goroutine", "worker_id", id)

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("stopping worker goroutine", "worker_id", id)
			return

		case job, ok := <-w.consumer.Deliveries():
			if !ok {
				w.logger.Debug("delivery channel closed, stopping worker goroutine", "worker_id", id)
				return
			}

			w.process(job, id)
		}
	}
}

// process handles a single delivery: dispatch, then ack or fail. Jobs run
// to completion; no cancellation is propagated into a started handler.
func (w *Worker) process(job *queue.Job, workerID int) {
	ctx := context.Background()
	logger := w.logger.With(
		"job_id", job.ID,
		"job_kind", job.Kind,
		"worker_id", workerID,
	)

	logger.Info("processing job")

	err := w.dispatch(ctx, job)
	if err != nil {
		logger.Error("job handler failed", "error", err)
		if failErr := w.consumer.Fail(ctx, job, err); failErr != nil {
			logger.Error("failed to record job failure", "error", failErr)
		}
		return
	}

	if ackErr := w.consumer.Ack(ctx, job); ackErr != nil {
		logger.Error("failed to ack job", "error", ackErr)
		return
	}
	logger.Info("job completed")
}

// dispatch routes a job to its handler by kind. The kind set is closed; a
// job carrying anything else fails permanently.
func (w *Worker) dispatch(ctx context.Context, job *queue.Job) error {
	switch job.Kind {
	case queue.JobKindStatusUpdate:
		return w.handleStatusUpdate(ctx, job)
	case queue.JobKindOverdueNotification:
		return w.handleOverdueNotification(ctx, job)
	default:
		return queue.Permanent(fmt.Errorf("unhandled job kind %q", job.Kind))
	}
}

// handleStatusUpdate applies the status carried by the job to the task.
// Payload violations fail the job permanently: no retry policy is attached
// to this job kind, and retrying a malformed payload cannot succeed.
func (w *Worker) handleStatusUpdate(ctx context.Context, job *queue.Job) error {
	var payload queue.StatusUpdatePayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return queue.Permanent(fmt.Errorf("malformed status update payload: %w", err))
	}

	if payload.TaskID == "" {
		return queue.Permanent(fmt.Errorf("status update payload missing task_id"))
	}
	if payload.Status == "" {
		return queue.Permanent(fmt.Errorf("status update payload missing status"))
	}

	taskID, err := uuid.Parse(payload.TaskID)
	if err != nil {
		return queue.Permanent(fmt.Errorf("invalid task_id %q: %w", payload.TaskID, err))
	}

	status := domain.TaskStatus(payload.Status)
	if err := status.Validate(); err != nil {
		return queue.Permanent(fmt.Errorf("%w: %q", err, payload.Status))
	}

	if err := w.lifecycle.UpdateStatus(ctx, taskID, status); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	w.logger.Debug("task status propagated", "task_id", taskID, "status", status)
	return nil
}

// handleOverdueNotification flips the task to overdue and notifies the
// owner. The job succeeds once the status is persisted; a notification
// delivery problem is logged but does not fail the job.
func (w *Worker) handleOverdueNotification(ctx context.Context, job *queue.Job) error {
	var payload queue.OverdueNotificationPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return queue.Permanent(fmt.Errorf("malformed overdue notification payload: %w", err))
	}

	taskID, err := uuid.Parse(payload.TaskID)
	if err != nil {
		return queue.Permanent(fmt.Errorf("invalid task_id %q: %w", payload.TaskID, err))
	}

	status := domain.TaskStatusOverdue
	if _, err := w.lifecycle.Update(ctx, taskID, domain.TaskPatch{Status: &status}); err != nil {
		return fmt.Errorf("failed to mark task overdue: %w", err)
	}

	if err := w.notifier.NotifyOverdue(ctx, taskID); err != nil {
		w.logger.Warn("overdue notification delivery failed",
			"task_id", taskID,
			"error", err)
	}

	return nil
}
