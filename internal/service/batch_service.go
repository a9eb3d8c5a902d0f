package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/taskforge/taskforge-api/internal/domain"
	"github.com/taskforge/taskforge-api/internal/store"
)

// Batch outcome messages. The not-found message is part of the contract:
// callers match on it to distinguish missing ids from write failures.
const (
	batchResultCompleted = "Task marked as completed"
	batchResultDeleted   = "Task deleted"
	batchErrorNotFound   = "Task not found"
)

// BatchService resolves a set of task ids against the store and performs
// one bulk mutation, returning a per-id outcome list.
type BatchService interface {
	// BatchProcess performs the given action on every existing task in the
	// id set with a single bulk write and synthesizes exactly one outcome
	// per requested id. Ids that do not exist fail with a not-found outcome;
	// a bulk write failure turns every found id into a failure outcome
	// carrying the write error's message.
	BatchProcess(
		ctx context.Context,
		ids []uuid.UUID,
		action domain.BatchAction,
		actingUserID uuid.UUID,
	) ([]domain.BatchOutcome, error)
}

// batchServiceImpl implements the BatchService interface
type batchServiceImpl struct {
	taskStore store.TaskStore
	db        *sql.DB
	logger    *slog.Logger
}

// NewBatchService creates a new BatchService. When db is non-nil, the id
// resolution and bulk write run inside one transaction so the found set
// cannot drift between the read and the write; a nil db runs both against
// the store directly.
func NewBatchService(
	taskStore store.TaskStore,
	db *sql.DB,
	logger *slog.Logger,
) (BatchService, error) {
	if taskStore == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "taskStore cannot be nil",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &batchServiceImpl{
		taskStore: taskStore,
		db:        db,
		logger:    logger.With("component", "batch_service"),
	}, nil
}

// BatchProcess resolves the id set with a single query, then issues one
// bulk write for the found subset. Not-found outcomes are determined before
// the write is attempted, so a write failure cannot affect them. The found
// set is deliberately not filtered by actingUserID; the acting user is
// recorded in the log only.
func (s *batchServiceImpl) BatchProcess(
	ctx context.Context,
	ids []uuid.UUID,
	action domain.BatchAction,
	actingUserID uuid.UUID,
) ([]domain.BatchOutcome, error) {
	if err := action.Validate(); err != nil {
		return nil, NewTaskServiceError("batch_process", "invalid action", err)
	}

	s.logger.Info("batch operation requested",
		"action", action,
		"id_count", len(ids),
		"acting_user_id", actingUserID)

	if len(ids) == 0 {
		return []domain.BatchOutcome{}, nil
	}

	foundIDs, writeErr, resolveErr := s.resolveAndApply(ctx, ids, action)
	if resolveErr != nil {
		s.logger.Error("failed to resolve batch id set",
			"error", resolveErr,
			"action", action)
		return nil, NewTaskServiceError("batch_process", "failed to resolve id set", resolveErr)
	}

	foundSet := make(map[uuid.UUID]bool, len(foundIDs))
	for _, id := range foundIDs {
		foundSet[id] = true
	}

	outcomes := make([]domain.BatchOutcome, 0, len(ids))
	for _, id := range ids {
		switch {
		case !foundSet[id]:
			outcomes = append(outcomes, domain.BatchOutcome{
				TaskID: id,
				Error:  batchErrorNotFound,
			})
		case writeErr != nil:
			// All-or-nothing: every found id shares the bulk write's fate.
			outcomes = append(outcomes, domain.BatchOutcome{
				TaskID: id,
				Error:  writeErr.Error(),
			})
		default:
			outcomes = append(outcomes, domain.BatchOutcome{
				TaskID:  id,
				Success: true,
				Result:  successMessage(action),
			})
		}
	}

	if writeErr != nil {
		s.logger.Error("batch bulk write failed",
			"error", writeErr,
			"action", action,
			"found_count", len(foundIDs))
	} else {
		s.logger.Info("batch operation completed",
			"action", action,
			"found_count", len(foundIDs),
			"missing_count", len(ids)-len(foundIDs))
	}

	return outcomes, nil
}

// resolveAndApply resolves the id set and, for the found subset, issues the
// single bulk mutation. A write failure is reported separately from a
// resolve failure: the former becomes per-id outcomes, the latter fails the
// whole call.
func (s *batchServiceImpl) resolveAndApply(
	ctx context.Context,
	ids []uuid.UUID,
	action domain.BatchAction,
) (foundIDs []uuid.UUID, writeErr error, resolveErr error) {
	apply := func(ctx context.Context, taskStore store.TaskStore) error {
		found, err := taskStore.FindByIDs(ctx, ids)
		if err != nil {
			resolveErr = err
			return err
		}

		foundSet := make(map[uuid.UUID]bool, len(found))
		for _, task := range found {
			foundSet[task.ID] = true
		}
		foundIDs = make([]uuid.UUID, 0, len(found))
		for _, id := range ids {
			if foundSet[id] {
				foundIDs = append(foundIDs, id)
			}
		}

		if len(foundIDs) == 0 {
			return nil
		}

		if err := bulkWrite(ctx, taskStore, foundIDs, action); err != nil {
			writeErr = err
			return err
		}
		return nil
	}

	if s.db == nil {
		_ = apply(ctx, s.taskStore)
		return foundIDs, writeErr, resolveErr
	}

	txErr := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return apply(ctx, s.taskStore.WithTx(tx))
	})
	// A commit failure means the write did not land; report it like one.
	if txErr != nil && resolveErr == nil && writeErr == nil {
		writeErr = txErr
	}

	return foundIDs, writeErr, resolveErr
}

// bulkWrite issues the single bulk mutation for the found id set.
func bulkWrite(
	ctx context.Context,
	taskStore store.TaskStore,
	ids []uuid.UUID,
	action domain.BatchAction,
) error {
	switch action {
	case domain.BatchActionComplete:
		return taskStore.BulkUpdateStatus(ctx, ids, domain.TaskStatusCompleted)
	case domain.BatchActionDelete:
		return taskStore.BulkDeleteByIDs(ctx, ids)
	default:
		return domain.ErrInvalidBatchAction
	}
}

func successMessage(action domain.BatchAction) string {
	if action == domain.BatchActionDelete {
		return batchResultDeleted
	}
	return batchResultCompleted
}
