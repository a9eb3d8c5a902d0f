package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskforge/taskforge-api/internal/domain"
	"github.com/taskforge/taskforge-api/internal/queue"
)

func newTaskService(t *testing.T, taskStore *MockTaskStore, enqueuer *MockEnqueuer) TaskService {
	t.Helper()

	svc, err := NewTaskService(taskStore, enqueuer, newTestLogger())
	require.NoError(t, err)
	return svc
}

func decodeStatusUpdate(t *testing.T, job enqueuedJob) queue.StatusUpdatePayload {
	t.Helper()

	var payload queue.StatusUpdatePayload
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	return payload
}

func TestNewTaskService(t *testing.T) {
	t.Parallel()

	t.Run("nil store rejected", func(t *testing.T) {
		t.Parallel()

		_, err := NewTaskService(nil, NewMockEnqueuer(), newTestLogger())
		assert.Error(t, err)
	})

	t.Run("nil enqueuer rejected", func(t *testing.T) {
		t.Parallel()

		_, err := NewTaskService(NewMockTaskStore(), nil, newTestLogger())
		assert.Error(t, err)
	})
}

func TestTaskService_Create(t *testing.T) {
	t.Parallel()

	t.Run("persists and enqueues exactly one status update", func(t *testing.T) {
		t.Parallel()

		taskStore := NewMockTaskStore()
		enqueuer := NewMockEnqueuer()
		svc := newTaskService(t, taskStore, enqueuer)

		task, err := svc.Create(context.Background(), CreateTaskInput{
			Title:    "ship release",
			Priority: domain.TaskPriorityHigh,
			OwnerID:  uuid.New(),
		})
		require.NoError(t, err)

		persisted, err := taskStore.GetByID(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, persisted.Status)

		jobs := enqueuer.Enqueued()
		require.Len(t, jobs, 1)
		assert.Equal(t, queue.JobKindStatusUpdate, jobs[0].Kind)

		payload := decodeStatusUpdate(t, jobs[0])
		assert.Equal(t, task.ID.String(), payload.TaskID)
		assert.Equal(t, string(persisted.Status), payload.Status)

		// No retry policy is attached to this job kind.
		assert.Equal(t, queue.EnqueueOptions{}, jobs[0].Options)
	})

	t.Run("enqueue failure does not roll back persistence", func(t *testing.T) {
		t.Parallel()

		taskStore := NewMockTaskStore()
		enqueuer := NewMockEnqueuer()
		enqueuer.EnqueueFn = func(ctx context.Context, kind queue.JobKind, payload any, opts queue.EnqueueOptions) (*queue.Job, error) {
			return nil, queue.ErrQueueFull
		}
		svc := newTaskService(t, taskStore, enqueuer)

		task, err := svc.Create(context.Background(), CreateTaskInput{
			Title:   "best effort",
			OwnerID: uuid.New(),
		})

		require.NoError(t, err, "enqueue failure must not surface to the caller")
		_, err = taskStore.GetByID(context.Background(), task.ID)
		assert.NoError(t, err, "task must remain persisted")
	})

	t.Run("invalid input enqueues nothing", func(t *testing.T) {
		t.Parallel()

		enqueuer := NewMockEnqueuer()
		svc := newTaskService(t, NewMockTaskStore(), enqueuer)

		_, err := svc.Create(context.Background(), CreateTaskInput{OwnerID: uuid.New()})

		require.Error(t, err)
		assert.Empty(t, enqueuer.Enqueued())
	})
}

func TestTaskService_Update(t *testing.T) {
	t.Parallel()

	seedTask := func(t *testing.T, taskStore *MockTaskStore) *domain.Task {
		t.Helper()
		task, err := domain.NewTask(uuid.New(), "seeded", "", domain.TaskPriorityMedium, nil)
		require.NoError(t, err)
		taskStore.Put(task)
		return task
	}

	t.Run("status change enqueues one job with the new status", func(t *testing.T) {
		t.Parallel()

		taskStore := NewMockTaskStore()
		enqueuer := NewMockEnqueuer()
		svc := newTaskService(t, taskStore, enqueuer)
		task := seedTask(t, taskStore)

		status := domain.TaskStatusInProgress
		updated, err := svc.Update(context.Background(), task.ID, domain.TaskPatch{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusInProgress, updated.Status)

		jobs := enqueuer.Enqueued()
		require.Len(t, jobs, 1)
		payload := decodeStatusUpdate(t, jobs[0])
		assert.Equal(t, string(domain.TaskStatusInProgress), payload.Status)
	})

	t.Run("same status enqueues nothing", func(t *testing.T) {
		t.Parallel()

		taskStore := NewMockTaskStore()
		enqueuer := NewMockEnqueuer()
		svc := newTaskService(t, taskStore, enqueuer)
		task := seedTask(t, taskStore)

		status := task.Status
		_, err := svc.Update(context.Background(), task.ID, domain.TaskPatch{Status: &status})
		require.NoError(t, err)

		assert.Empty(t, enqueuer.Enqueued())
	})

	t.Run("patch without status enqueues nothing", func(t *testing.T) {
		t.Parallel()

		taskStore := NewMockTaskStore()
		enqueuer := NewMockEnqueuer()
		svc := newTaskService(t, taskStore, enqueuer)
		task := seedTask(t, taskStore)

		title := "renamed"
		updated, err := svc.Update(context.Background(), task.ID, domain.TaskPatch{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "renamed", updated.Title)

		assert.Empty(t, enqueuer.Enqueued())
	})

	t.Run("absent task returns not found", func(t *testing.T) {
		t.Parallel()

		svc := newTaskService(t, NewMockTaskStore(), NewMockEnqueuer())

		_, err := svc.Update(context.Background(), uuid.New(), domain.TaskPatch{})
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestTaskService_GetAndDelete(t *testing.T) {
	t.Parallel()

	t.Run("get returns the persisted task", func(t *testing.T) {
		t.Parallel()

		taskStore := NewMockTaskStore()
		svc := newTaskService(t, taskStore, NewMockEnqueuer())

		task, err := domain.NewTask(uuid.New(), "to read", "", domain.TaskPriorityLow, nil)
		require.NoError(t, err)
		taskStore.Put(task)

		got, err := svc.Get(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
	})

	t.Run("get absent task returns not found", func(t *testing.T) {
		t.Parallel()

		svc := newTaskService(t, NewMockTaskStore(), NewMockEnqueuer())
		_, err := svc.Get(context.Background(), uuid.New())
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("delete removes the task and enqueues nothing", func(t *testing.T) {
		t.Parallel()

		taskStore := NewMockTaskStore()
		enqueuer := NewMockEnqueuer()
		svc := newTaskService(t, taskStore, enqueuer)

		task, err := domain.NewTask(uuid.New(), "to remove", "", domain.TaskPriorityLow, nil)
		require.NoError(t, err)
		taskStore.Put(task)

		require.NoError(t, svc.Delete(context.Background(), task.ID))

		_, err = taskStore.GetByID(context.Background(), task.ID)
		assert.Error(t, err)
		assert.Empty(t, enqueuer.Enqueued())
	})

	t.Run("delete absent task returns not found", func(t *testing.T) {
		t.Parallel()

		svc := newTaskService(t, NewMockTaskStore(), NewMockEnqueuer())
		err := svc.Delete(context.Background(), uuid.New())
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestTaskService_UpdateStatus(t *testing.T) {
	t.Parallel()

	t.Run("persists the new status", func(t *testing.T) {
		t.Parallel()

		taskStore := NewMockTaskStore()
		svc := newTaskService(t, taskStore, NewMockEnqueuer())

		task, err := domain.NewTask(uuid.New(), "to flip", "", domain.TaskPriorityLow, nil)
		require.NoError(t, err)
		taskStore.Put(task)

		require.NoError(t, svc.UpdateStatus(context.Background(), task.ID, domain.TaskStatusOverdue))

		persisted, err := taskStore.GetByID(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusOverdue, persisted.Status)
	})

	t.Run("absent task returns not found", func(t *testing.T) {
		t.Parallel()

		svc := newTaskService(t, NewMockTaskStore(), NewMockEnqueuer())

		err := svc.UpdateStatus(context.Background(), uuid.New(), domain.TaskStatusCompleted)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestTaskService_FindOverdue(t *testing.T) {
	t.Parallel()

	t.Run("returns only tasks due strictly before now, regardless of status", func(t *testing.T) {
		t.Parallel()

		taskStore := NewMockTaskStore()
		svc := newTaskService(t, taskStore, NewMockEnqueuer())

		past := time.Now().UTC().Add(-time.Hour)
		future := time.Now().UTC().Add(time.Hour)

		overdueTask, err := domain.NewTask(uuid.New(), "late", "", domain.TaskPriorityLow, &past)
		require.NoError(t, err)
		overdueTask.Status = domain.TaskStatusCompleted // status must not matter
		taskStore.Put(overdueTask)

		onTimeTask, err := domain.NewTask(uuid.New(), "on time", "", domain.TaskPriorityLow, &future)
		require.NoError(t, err)
		taskStore.Put(onTimeTask)

		noDueTask, err := domain.NewTask(uuid.New(), "no due date", "", domain.TaskPriorityLow, nil)
		require.NoError(t, err)
		taskStore.Put(noDueTask)

		overdue, err := svc.FindOverdue(context.Background())
		require.NoError(t, err)
		require.Len(t, overdue, 1)
		assert.Equal(t, overdueTask.ID, overdue[0].ID)
	})

	t.Run("store error surfaces", func(t *testing.T) {
		t.Parallel()

		taskStore := NewMockTaskStore()
		queryErr := errors.New("connection refused")
		taskStore.FindOverdueFn = func(ctx context.Context, now time.Time) ([]*domain.Task, error) {
			return nil, queryErr
		}
		svc := newTaskService(t, taskStore, NewMockEnqueuer())

		_, err := svc.FindOverdue(context.Background())
		assert.ErrorIs(t, err, queryErr)
	})
}
