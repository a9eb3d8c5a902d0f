package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskforge/taskforge-api/internal/domain"
	"github.com/taskforge/taskforge-api/internal/queue"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// mockConsumer implements queue.Consumer over a plain channel and records
// every ack and fail.
type mockConsumer struct {
	ch chan *queue.Job

	mu     sync.Mutex
	acked  []*queue.Job
	failed map[uuid.UUID]error
	seen   chan struct{}
}

func newMockConsumer(size int) *mockConsumer {
	return &mockConsumer{
		ch:     make(chan *queue.Job, size),
		failed: make(map[uuid.UUID]error),
		seen:   make(chan struct{}, size),
	}
}

func (c *mockConsumer) Deliveries() <-chan *queue.Job {
	return c.ch
}

func (c *mockConsumer) Ack(ctx context.Context, job *queue.Job) error {
	c.mu.Lock()
	c.acked = append(c.acked, job)
	c.mu.Unlock()
	c.seen <- struct{}{}
	return nil
}

func (c *mockConsumer) Fail(ctx context.Context, job *queue.Job, cause error) error {
	c.mu.Lock()
	c.failed[job.ID] = cause
	c.mu.Unlock()
	c.seen <- struct{}{}
	return nil
}

// waitProcessed blocks until n deliveries have been acked or failed.
func (c *mockConsumer) waitProcessed(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d of %d to be processed", i+1, n)
		}
	}
}

func (c *mockConsumer) failureFor(jobID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed[jobID]
}

func (c *mockConsumer) ackedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acked)
}

// mockLifecycle implements TaskLifecycle with overridable functions.
type mockLifecycle struct {
	UpdateFn       func(ctx context.Context, id uuid.UUID, patch domain.TaskPatch) (*domain.Task, error)
	UpdateStatusFn func(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error
}

func (m *mockLifecycle) Update(
	ctx context.Context,
	id uuid.UUID,
	patch domain.TaskPatch,
) (*domain.Task, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, id, patch)
	}
	return &domain.Task{ID: id}, nil
}

func (m *mockLifecycle) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.TaskStatus,
) error {
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, id, status)
	}
	return nil
}

// mockNotifier records overdue notifications.
type mockNotifier struct {
	mu       sync.Mutex
	notified []uuid.UUID
	Err      error
}

func (n *mockNotifier) NotifyOverdue(ctx context.Context, taskID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, taskID)
	return n.Err
}

func makeJob(t *testing.T, kind queue.JobKind, payload any) *queue.Job {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	return &queue.Job{
		ID:      uuid.New(),
		Kind:    kind,
		Payload: body,
		Status:  queue.JobStatusPending,
		Options: queue.EnqueueOptions{MaxAttempts: 1},
	}
}

func startWorker(t *testing.T, consumer queue.Consumer, lifecycle TaskLifecycle, notifier Notifier, cfg Config) *Worker {
	t.Helper()

	w := New(consumer, lifecycle, notifier, cfg, newTestLogger())
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func TestWorker_StatusUpdate(t *testing.T) {
	t.Parallel()

	t.Run("applies status and acks", func(t *testing.T) {
		t.Parallel()

		taskID := uuid.New()
		var gotID uuid.UUID
		var gotStatus domain.TaskStatus
		var mu sync.Mutex

		lifecycle := &mockLifecycle{
			UpdateStatusFn: func(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
				mu.Lock()
				defer mu.Unlock()
				gotID = id
				gotStatus = status
				return nil
			},
		}

		consumer := newMockConsumer(1)
		consumer.ch <- makeJob(t, queue.JobKindStatusUpdate, queue.StatusUpdatePayload{
			TaskID: taskID.String(),
			Status: string(domain.TaskStatusInProgress),
		})

		startWorker(t, consumer, lifecycle, &mockNotifier{}, Config{Concurrency: 1})
		consumer.waitProcessed(t, 1)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, taskID, gotID)
		assert.Equal(t, domain.TaskStatusInProgress, gotStatus)
		assert.Equal(t, 1, consumer.ackedCount())
	})

	t.Run("out-of-enum status fails permanently", func(t *testing.T) {
		t.Parallel()

		lifecycle := &mockLifecycle{
			UpdateStatusFn: func(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
				t.Error("UpdateStatus must not be called for an invalid payload")
				return nil
			},
		}

		consumer := newMockConsumer(1)
		job := makeJob(t, queue.JobKindStatusUpdate, queue.StatusUpdatePayload{
			TaskID: uuid.New().String(),
			Status: "archived",
		})
		consumer.ch <- job

		startWorker(t, consumer, lifecycle, &mockNotifier{}, Config{Concurrency: 1})
		consumer.waitProcessed(t, 1)

		cause := consumer.failureFor(job.ID)
		require.Error(t, cause)
		assert.ErrorIs(t, cause, queue.ErrPermanent)
		assert.ErrorIs(t, cause, domain.ErrInvalidTaskStatus)
	})

	t.Run("missing task_id fails permanently", func(t *testing.T) {
		t.Parallel()

		consumer := newMockConsumer(1)
		job := makeJob(t, queue.JobKindStatusUpdate, queue.StatusUpdatePayload{
			Status: string(domain.TaskStatusCompleted),
		})
		consumer.ch <- job

		startWorker(t, consumer, &mockLifecycle{}, &mockNotifier{}, Config{Concurrency: 1})
		consumer.waitProcessed(t, 1)

		cause := consumer.failureFor(job.ID)
		require.Error(t, cause)
		assert.ErrorIs(t, cause, queue.ErrPermanent)
		assert.Contains(t, cause.Error(), "missing task_id")
	})

	t.Run("lifecycle error propagates as retryable failure", func(t *testing.T) {
		t.Parallel()

		storeErr := errors.New("store unavailable")
		lifecycle := &mockLifecycle{
			UpdateStatusFn: func(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
				return storeErr
			},
		}

		consumer := newMockConsumer(1)
		job := makeJob(t, queue.JobKindStatusUpdate, queue.StatusUpdatePayload{
			TaskID: uuid.New().String(),
			Status: string(domain.TaskStatusCompleted),
		})
		consumer.ch <- job

		startWorker(t, consumer, lifecycle, &mockNotifier{}, Config{Concurrency: 1})
		consumer.waitProcessed(t, 1)

		cause := consumer.failureFor(job.ID)
		require.Error(t, cause)
		assert.ErrorIs(t, cause, storeErr)
		assert.NotErrorIs(t, cause, queue.ErrPermanent)
	})
}

func TestWorker_OverdueNotification(t *testing.T) {
	t.Parallel()

	t.Run("marks task overdue and notifies", func(t *testing.T) {
		t.Parallel()

		taskID := uuid.New()
		var gotPatch domain.TaskPatch
		var mu sync.Mutex

		lifecycle := &mockLifecycle{
			UpdateFn: func(ctx context.Context, id uuid.UUID, patch domain.TaskPatch) (*domain.Task, error) {
				mu.Lock()
				defer mu.Unlock()
				gotPatch = patch
				return &domain.Task{ID: id, Status: domain.TaskStatusOverdue}, nil
			},
		}
		notifier := &mockNotifier{}

		consumer := newMockConsumer(1)
		consumer.ch <- makeJob(t, queue.JobKindOverdueNotification, queue.OverdueNotificationPayload{
			TaskID: taskID.String(),
		})

		startWorker(t, consumer, lifecycle, notifier, Config{Concurrency: 1})
		consumer.waitProcessed(t, 1)

		mu.Lock()
		require.NotNil(t, gotPatch.Status)
		assert.Equal(t, domain.TaskStatusOverdue, *gotPatch.Status)
		mu.Unlock()

		notifier.mu.Lock()
		assert.Equal(t, []uuid.UUID{taskID}, notifier.notified)
		notifier.mu.Unlock()

		assert.Equal(t, 1, consumer.ackedCount())
	})

	t.Run("notifier failure does not fail the job", func(t *testing.T) {
		t.Parallel()

		notifier := &mockNotifier{Err: errors.New("smtp down")}

		consumer := newMockConsumer(1)
		job := makeJob(t, queue.JobKindOverdueNotification, queue.OverdueNotificationPayload{
			TaskID: uuid.New().String(),
		})
		consumer.ch <- job

		startWorker(t, consumer, &mockLifecycle{}, notifier, Config{Concurrency: 1})
		consumer.waitProcessed(t, 1)

		assert.Equal(t, 1, consumer.ackedCount(), "job succeeds once status is persisted")
		assert.NoError(t, consumer.failureFor(job.ID))
	})

	t.Run("update failure propagates to the queue", func(t *testing.T) {
		t.Parallel()

		updateErr := errors.New("row locked")
		lifecycle := &mockLifecycle{
			UpdateFn: func(ctx context.Context, id uuid.UUID, patch domain.TaskPatch) (*domain.Task, error) {
				return nil, updateErr
			},
		}

		consumer := newMockConsumer(1)
		job := makeJob(t, queue.JobKindOverdueNotification, queue.OverdueNotificationPayload{
			TaskID: uuid.New().String(),
		})
		consumer.ch <- job

		startWorker(t, consumer, lifecycle, &mockNotifier{}, Config{Concurrency: 1})
		consumer.waitProcessed(t, 1)

		assert.ErrorIs(t, consumer.failureFor(job.ID), updateErr)
	})
}

func TestWorker_UnknownKind(t *testing.T) {
	t.Parallel()

	consumer := newMockConsumer(1)
	job := makeJob(t, queue.JobKind("reindex"), nil)
	consumer.ch <- job

	startWorker(t, consumer, &mockLifecycle{}, &mockNotifier{}, Config{Concurrency: 1})
	consumer.waitProcessed(t, 1)

	cause := consumer.failureFor(job.ID)
	require.Error(t, cause)
	assert.ErrorIs(t, cause, queue.ErrPermanent)
	assert.Contains(t, cause.Error(), "unhandled job kind")
}

func TestWorker_ConcurrencyBound(t *testing.T) {
	t.Parallel()

	const bound = 10
	const jobCount = 2 * bound

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0

	lifecycle := &mockLifecycle{
		UpdateStatusFn: func(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil
		},
	}

	consumer := newMockConsumer(jobCount)
	for i := 0; i < jobCount; i++ {
		consumer.ch <- makeJob(t, queue.JobKindStatusUpdate, queue.StatusUpdatePayload{
			TaskID: uuid.New().String(),
			Status: string(domain.TaskStatusCompleted),
		})
	}

	startWorker(t, consumer, lifecycle, &mockNotifier{}, Config{Concurrency: bound})
	consumer.waitProcessed(t, jobCount)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxInFlight, bound, "in-flight jobs must never exceed the bound")
	assert.Equal(t, jobCount, consumer.ackedCount())
}

func TestWorker_InvalidConcurrencyDefaults(t *testing.T) {
	t.Parallel()

	w := New(newMockConsumer(1), &mockLifecycle{}, &mockNotifier{}, Config{Concurrency: -3}, newTestLogger())
	assert.Equal(t, DefaultConfig().Concurrency, w.concurrency)
}
