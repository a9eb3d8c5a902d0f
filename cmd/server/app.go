package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/taskforge/taskforge-api/internal/api"
	apimiddleware "github.com/taskforge/taskforge-api/internal/api/middleware"
	"github.com/taskforge/taskforge-api/internal/config"
	"github.com/taskforge/taskforge-api/internal/platform/postgres"
	"github.com/taskforge/taskforge-api/internal/queue"
	"github.com/taskforge/taskforge-api/internal/scanner"
	"github.com/taskforge/taskforge-api/internal/service"
	"github.com/taskforge/taskforge-api/internal/worker"
)

// application bundles every long-lived component of the server process.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jobQueue *queue.DurableQueue
	worker   *worker.Worker
	scanner  *scanner.OverdueScanner

	taskService  service.TaskService
	batchService service.BatchService
}

// newApplication wires stores, queue, services, worker, and scanner.
func newApplication(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*application, error) {
	taskStore := postgres.NewPostgresTaskStore(db, logger)
	jobStore := postgres.NewPostgresJobStore(db, logger)

	jobQueue := queue.NewDurableQueue(jobStore, cfg.Queue.Size, logger)

	taskService, err := service.NewTaskService(taskStore, jobQueue, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	batchService, err := service.NewBatchService(taskStore, db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch service: %w", err)
	}

	jobWorker := worker.New(
		jobQueue,
		taskService,
		worker.NewLogNotifier(logger),
		worker.Config{Concurrency: cfg.Worker.Concurrency},
		logger,
	)

	overdueScanner := scanner.New(
		taskService,
		jobQueue,
		scanner.Config{Interval: cfg.Scanner.Interval},
		logger,
	)

	return &application{
		config:       cfg,
		logger:       logger,
		db:           db,
		jobQueue:     jobQueue,
		worker:       jobWorker,
		scanner:      overdueScanner,
		taskService:  taskService,
		batchService: batchService,
	}, nil
}

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.taskService, app.batchService, app.logger)

	r.Route("/api", func(r chi.Router) {
		taskHandler.RegisterRoutes(r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}

// run starts the background components and the HTTP server, then blocks
// until a shutdown signal arrives and everything has drained.
func (app *application) run() error {
	app.worker.Start()
	app.scanner.Start()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.setupRouter(),
	}

	serverCtx, cancelServer := context.WithCancel(context.Background())
	defer cancelServer()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error("server failed", "error", err)
			cancelServer()
		}
	}()

	select {
	case <-shutdownCh:
		app.logger.Info("shutdown signal received")
	case <-serverCtx.Done():
		app.logger.Info("server context canceled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.cleanup()

	app.logger.Info("server shutdown completed")
	return nil
}

// cleanup stops the background components in dependency order: no new scans,
// then no new deliveries, then drain the workers, then release the database.
func (app *application) cleanup() {
	app.scanner.Stop()
	app.jobQueue.Close()
	app.worker.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database connection", "error", err)
	}
}
