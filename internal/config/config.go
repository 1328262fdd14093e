package config

import "time"

// Config holds all application configuration, organized into logical groups.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`
}

// DatabaseConfig contains the storage settings. Driver selects the TaskStore
// implementation: "postgres" persists to the database named by URL, "memory"
// keeps everything in process (useful for local development and demos).
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL    string `mapstructure:"url"    validate:"required_if=Driver postgres,omitempty,url"`
}

// SchedulerConfig contains the recurring-task scheduler settings.
type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"required"`
}
