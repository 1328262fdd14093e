package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithEnvDatabase(t *testing.T) {
	t.Setenv("TASKTRAIL_DATABASE_URL", "postgres://localhost:5432/tasktrail")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost:5432/tasktrail", cfg.Database.URL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TASKTRAIL_DATABASE_URL", "postgres://localhost:5432/tasktrail")
	t.Setenv("TASKTRAIL_SERVER_PORT", "9090")
	t.Setenv("TASKTRAIL_SERVER_LOG_LEVEL", "debug")
	t.Setenv("TASKTRAIL_SCHEDULER_INTERVAL", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
}

func TestLoad_MemoryDriverNeedsNoURL(t *testing.T) {
	t.Setenv("TASKTRAIL_DATABASE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoad_UnknownDriver(t *testing.T) {
	t.Setenv("TASKTRAIL_DATABASE_DRIVER", "sqlite")
	t.Setenv("TASKTRAIL_DATABASE_URL", "postgres://localhost:5432/tasktrail")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("TASKTRAIL_DATABASE_URL", "postgres://localhost:5432/tasktrail")
	t.Setenv("TASKTRAIL_SERVER_LOG_LEVEL", "verbose")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
