package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/tasktrail/tasktrail-api/internal/config"
	"github.com/tasktrail/tasktrail-api/internal/platform/memory"
	"github.com/tasktrail/tasktrail-api/internal/platform/postgres"
	"github.com/tasktrail/tasktrail-api/internal/scheduler"
	"github.com/tasktrail/tasktrail-api/internal/service"
	"github.com/tasktrail/tasktrail-api/internal/store"
)

// application holds the wired components of the server.
type application struct {
	config      *config.Config
	logger      *slog.Logger
	db          *sql.DB
	taskService service.TaskService
	scheduler   *scheduler.Scheduler
}

// newApplication wires the store, service, and scheduler layers. The store
// implementation follows the configured database driver; db is nil for the
// in-memory driver.
func newApplication(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*application, error) {
	var taskStore store.TaskStore
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using in-memory task store; data will not survive restarts")
		taskStore = memory.NewTaskStore()
	default:
		taskStore = postgres.NewPostgresTaskStore(db, logger)
	}

	taskService, err := service.NewTaskService(taskStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	app := &application{
		config:      cfg,
		logger:      logger,
		db:          db,
		taskService: taskService,
	}

	if cfg.Scheduler.Enabled {
		app.scheduler, err = scheduler.New(
			taskStore,
			scheduler.RealClock{},
			cfg.Scheduler.Interval,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create scheduler: %w", err)
		}
	}

	return app, nil
}

// run starts the scheduler and the HTTP server, blocking until shutdown.
func (app *application) run(ctx context.Context) error {
	if app.scheduler != nil {
		app.scheduler.Start(ctx)
	}

	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup releases resources during shutdown.
func (app *application) cleanup() {
	if app.scheduler != nil {
		app.scheduler.Stop()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Failed to close database", "error", err)
		}
	}
}
