// Package scanner implements the timer-driven producer that finds overdue
// tasks and enqueues notification jobs for them.
package scanner

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskforge/taskforge-api/internal/domain"
	"github.com/taskforge/taskforge-api/internal/queue"
)

// OverdueFinder is the read side of the task lifecycle service the scanner
// depends on.
type OverdueFinder interface {
	FindOverdue(ctx context.Context) ([]*domain.Task, error)
}

// Config holds configuration options for the overdue scanner
type Config struct {
	// Interval is the fixed recurring schedule on which scans run.
	// If zero, defaults to one hour.
	Interval time.Duration
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		Interval: time.Hour,
	}
}

// notificationOptions is the delivery policy attached to every overdue
// notification job: three attempts with exponential backoff from 60s,
// completed jobs purged after a day, failed jobs kept indefinitely for
// operator inspection.
func notificationOptions() queue.EnqueueOptions {
	return queue.EnqueueOptions{
		MaxAttempts:     3,
		Backoff:         queue.BackoffPolicy{Base: 60 * time.Second},
		RetainCompleted: 24 * time.Hour,
		RetainFailed:    queue.RetainForever,
	}
}

// OverdueScanner polls the store on a fixed interval and enqueues one
// overdue notification job per overdue task. Scans do not deduplicate
// across runs: a task that stays overdue is re-enqueued on every tick
// until its status is flipped, so downstream handlers must tolerate
// repeated jobs for the same task. A tick that fires while a previous
// scan is still running is skipped rather than overlapped.
type OverdueScanner struct {
	finder   OverdueFinder
	enqueuer queue.Enqueuer
	interval time.Duration
	logger   *slog.Logger

	scanning atomic.Bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new OverdueScanner.
func New(
	finder OverdueFinder,
	enqueuer queue.Enqueuer,
	config Config,
	logger *slog.Logger,
) *OverdueScanner {
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &OverdueScanner{
		finder:   finder,
		enqueuer: enqueuer,
		interval: interval,
		logger:   logger.With("component", "overdue_scanner"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the recurring scan loop.
func (s *OverdueScanner) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("overdue scanner started", "interval", s.interval)
}

// Stop signals the scan loop to stop and waits for an in-flight scan to
// finish.
func (s *OverdueScanner) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("overdue scanner stopped")
}

func (s *OverdueScanner) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Scan(s.ctx)
		}
	}
}

// Scan runs one scan: query overdue tasks, then fan out one notification
// job per task concurrently. If a previous scan is still running the call
// is skipped. Enqueue failures are logged per task; one task's failure
// does not stop the rest of the fan-out.
func (s *OverdueScanner) Scan(ctx context.Context) {
	if !s.scanning.CompareAndSwap(false, true) {
		s.logger.Warn("previous scan still running, skipping tick")
		return
	}
	defer s.scanning.Store(false)

	tasks, err := s.finder.FindOverdue(ctx)
	if err != nil {
		s.logger.Error("overdue scan query failed", "error", err)
		return
	}

	s.logger.Info("overdue scan completed", "overdue_count", len(tasks))

	if len(tasks) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task *domain.Task) {
			defer wg.Done()
			s.enqueueNotification(ctx, task)
		}(task)
	}
	wg.Wait()
}

func (s *OverdueScanner) enqueueNotification(ctx context.Context, task *domain.Task) {
	payload := queue.OverdueNotificationPayload{TaskID: task.ID.String()}

	job, err := s.enqueuer.Enqueue(ctx, queue.JobKindOverdueNotification, payload, notificationOptions())
	if err != nil {
		s.logger.Error("failed to enqueue overdue notification",
			"error", err,
			"task_id", task.ID)
		return
	}

	s.logger.Debug("overdue notification enqueued",
		"job_id", job.ID,
		"task_id", task.ID)
}
