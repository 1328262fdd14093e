package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasktrail/tasktrail-api/internal/domain"
	"github.com/tasktrail/tasktrail-api/internal/platform/memory"
	"github.com/tasktrail/tasktrail-api/internal/store"
)

func newTestScheduler(t *testing.T, clock Clock) (*Scheduler, *memory.TaskStore) {
	t.Helper()

	taskStore := memory.NewTaskStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(taskStore, clock, time.Hour, logger)
	require.NoError(t, err)
	return s, taskStore
}

func createTemplate(
	t *testing.T,
	taskStore *memory.TaskStore,
	title string,
	pattern domain.RecurrencePattern,
	due time.Time,
) *domain.Task {
	t.Helper()

	task, err := domain.NewTask(title, domain.TaskPriorityMedium, &due, nil)
	require.NoError(t, err)
	task.IsRecurring = true
	task.RecurrencePattern = pattern
	require.NoError(t, taskStore.Create(context.Background(), task))
	return task
}

func listCronCreated(t *testing.T, taskStore *memory.TaskStore) []*domain.Task {
	t.Helper()

	cron := true
	tasks, err := taskStore.List(context.Background(), store.TaskFilter{CronCreated: &cron}, 0, 0)
	require.NoError(t, err)
	return tasks
}

func TestNew_Validation(t *testing.T) {
	taskStore := memory.NewTaskStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := New(nil, RealClock{}, time.Hour, logger)
	assert.Error(t, err)

	_, err = New(taskStore, nil, time.Hour, logger)
	assert.Error(t, err)

	_, err = New(taskStore, RealClock{}, 0, logger)
	assert.Error(t, err)

	_, err = New(taskStore, RealClock{}, time.Hour, nil)
	assert.Error(t, err)
}

func TestRunTick_MaterializesDueTemplate(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(now)
	s, taskStore := newTestScheduler(t, clock)

	due := now.Add(-time.Hour)
	template := createTemplate(t, taskStore, "Water plants", domain.RecurrenceDaily, due)

	stats := s.RunTick(context.Background())
	assert.Equal(t, TickStats{Examined: 1, Created: 1}, stats)

	created := listCronCreated(t, taskStore)
	require.Len(t, created, 1)
	occ := created[0]
	assert.Equal(t, "Water plants", occ.Title)
	assert.Equal(t, domain.TaskStatusNotDone, occ.Status)
	assert.True(t, occ.IsRecurring)
	assert.Equal(t, domain.RecurrenceDaily, occ.RecurrencePattern)
	assert.True(t, occ.CronCreated)
	require.NotNil(t, occ.DueDate)
	assert.True(t, occ.DueDate.Equal(due.AddDate(0, 0, 1)))
	assert.NotEqual(t, template.ID, occ.ID)
}

func TestRunTick_MaterializesTemplateDueLaterToday(t *testing.T) {
	// A morning tick must not skip a template whose due time is later the
	// same day; due-ness is decided by calendar day, not instant.
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(now)
	s, taskStore := newTestScheduler(t, clock)

	due := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	createTemplate(t, taskStore, "Evening run", domain.RecurrenceDaily, due)

	stats := s.RunTick(context.Background())
	assert.Equal(t, TickStats{Examined: 1, Created: 1}, stats)

	created := listCronCreated(t, taskStore)
	require.Len(t, created, 1)
	assert.True(t, created[0].DueDate.Equal(due.AddDate(0, 0, 1)))
}

func TestRunTick_SkipsFutureTemplate(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(now)
	s, taskStore := newTestScheduler(t, clock)

	createTemplate(t, taskStore, "Pay rent", domain.RecurrenceMonthly, now.Add(48*time.Hour))

	stats := s.RunTick(context.Background())
	assert.Equal(t, TickStats{Examined: 1, Skipped: 1}, stats)
	assert.Empty(t, listCronCreated(t, taskStore))
}

func TestRunTick_Idempotent(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(now)
	s, taskStore := newTestScheduler(t, clock)

	createTemplate(t, taskStore, "Water plants", domain.RecurrenceDaily, now.Add(-time.Hour))

	first := s.RunTick(context.Background())
	assert.Equal(t, 1, first.Created)

	// The occurrence is itself a recurring template, so the second tick
	// examines both; neither produces a new task because the occurrence for
	// each next due day already exists or is not yet due.
	second := s.RunTick(context.Background())
	assert.Equal(t, 0, second.Created)
	assert.Len(t, listCronCreated(t, taskStore), 1)
}

func TestRunTick_WeeklyCadenceAdvancesThroughChain(t *testing.T) {
	start := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	s, taskStore := newTestScheduler(t, clock)

	createTemplate(t, taskStore, "Weekly review", domain.RecurrenceWeekly, start)

	// Tick on the due day creates the occurrence for the following week.
	stats := s.RunTick(context.Background())
	assert.Equal(t, 1, stats.Created)

	// A week later the occurrence itself is due and spawns the next link.
	clock.Advance(7 * 24 * time.Hour)
	stats = s.RunTick(context.Background())
	assert.Equal(t, 1, stats.Created)

	created := listCronCreated(t, taskStore)
	require.Len(t, created, 2)
	days := make(map[string]bool)
	for _, task := range created {
		days[task.DueDate.Format("2006-01-02")] = true
	}
	assert.True(t, days["2025-03-10"])
	assert.True(t, days["2025-03-17"])
}

// failingCreateStore wraps a TaskStore and fails Create for one title, to
// exercise per-template failure isolation.
type failingCreateStore struct {
	store.TaskStore
	failTitle string
}

func (f *failingCreateStore) Create(ctx context.Context, task *domain.Task) error {
	if task.Title == f.failTitle {
		return store.ErrUnavailable
	}
	return f.TaskStore.Create(ctx, task)
}

func TestRunTick_FailureIsolation(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(now)
	taskStore := memory.NewTaskStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	wrapped := &failingCreateStore{TaskStore: taskStore, failTitle: "Flaky"}
	s, err := New(wrapped, clock, time.Hour, logger)
	require.NoError(t, err)

	createTemplate(t, taskStore, "Flaky", domain.RecurrenceDaily, now.Add(-time.Hour))
	createTemplate(t, taskStore, "Healthy", domain.RecurrenceDaily, now.Add(-time.Hour))

	stats := s.RunTick(context.Background())
	assert.Equal(t, 2, stats.Examined)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Failed)

	created := listCronCreated(t, taskStore)
	require.Len(t, created, 1)
	assert.Equal(t, "Healthy", created[0].Title)
}

func TestStartStop(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(now)
	s, taskStore := newTestScheduler(t, clock)

	createTemplate(t, taskStore, "Water plants", domain.RecurrenceDaily, now.Add(-time.Hour))

	// Start runs an immediate tick before settling into the interval loop.
	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(listCronCreated(t, taskStore)) == 1
	}, time.Second, 10*time.Millisecond)

	s.Stop()
}
