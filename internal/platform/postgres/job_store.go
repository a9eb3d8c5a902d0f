package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/taskforge/taskforge-api/internal/platform/logger"
	"github.com/taskforge/taskforge-api/internal/queue"
	"github.com/taskforge/taskforge-api/internal/store"
)

// PostgresJobStore implements the queue.JobStore interface
// using a PostgreSQL database as the storage backend. Job rows outlive the
// in-memory delivery channel, so retained completed and failed jobs stay
// inspectable after the process exits.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgreSQL implementation of the JobStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Ensure PostgresJobStore implements queue.JobStore interface
var _ queue.JobStore = (*PostgresJobStore)(nil)

// SaveJob implements queue.JobStore.SaveJob
// It persists a newly enqueued job record.
func (s *PostgresJobStore) SaveJob(ctx context.Context, job *queue.Job) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO jobs (id, kind, payload, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.Kind,
		[]byte(job.Payload),
		job.Status,
		job.Attempts,
		job.LastError,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to save job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()),
			slog.String("job_kind", string(job.Kind)))
		return MapError(err)
	}

	log.Debug("job saved",
		slog.String("job_id", job.ID.String()),
		slog.String("job_kind", string(job.Kind)))
	return nil
}

// UpdateJobStatus implements queue.JobStore.UpdateJobStatus
// It records the delivery state of a job after an attempt.
// Returns store.ErrJobNotFound if the job record does not exist.
func (s *PostgresJobStore) UpdateJobStatus(
	ctx context.Context,
	jobID uuid.UUID,
	status queue.JobStatus,
	attempts int,
	errorMsg string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE jobs
		SET status = $1, attempts = $2, last_error = $3, updated_at = NOW()
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, attempts, errorMsg, jobID)
	if err != nil {
		log.Error("failed to update job status",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()),
			slog.String("status", string(status)))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "job"); err != nil {
		log.Warn("job not found for status update", slog.String("job_id", jobID.String()))
		return store.ErrJobNotFound
	}

	log.Debug("job status updated",
		slog.String("job_id", jobID.String()),
		slog.String("status", string(status)),
		slog.Int("attempts", attempts))
	return nil
}

// DeleteJob implements queue.JobStore.DeleteJob
// It purges a job record whose retention window has elapsed. Deleting a job
// that is already gone is not an error.
func (s *PostgresJobStore) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		log.Error("failed to delete job",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return MapError(err)
	}

	log.Debug("job record purged", slog.String("job_id", jobID.String()))
	return nil
}
