// Package main implements the entry point for the TaskTrail API server, a
// task tracker with dependency-aware completion, filtered search with
// aggregate statistics, and scheduled materialization of recurring tasks.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"

	"github.com/tasktrail/tasktrail-api/internal/config"
	"github.com/tasktrail/tasktrail-api/internal/platform/logger"
)

func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.run(context.Background()); err != nil {
		app.logger.Error("Server exited with error", "error", err)
		app.cleanup()
		log.Fatalf("Server failed: %v", err)
	}
}

// initializeApp loads configuration, sets up logging, connects to the
// database, and wires the application components.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server)

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"store_driver", cfg.Database.Driver,
		"scheduler_enabled", cfg.Scheduler.Enabled,
		"scheduler_interval", cfg.Scheduler.Interval.String())

	var db *sql.DB
	if cfg.Database.Driver == "postgres" {
		db, err = openDatabase(cfg.Database.URL, appLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to set up database: %w", err)
		}
	}

	app, err := newApplication(cfg, db, appLogger)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("failed to wire application: %w", err)
	}

	return app, nil
}
