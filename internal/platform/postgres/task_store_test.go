package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasktrail/tasktrail-api/internal/domain"
	"github.com/tasktrail/tasktrail-api/internal/store"
	"github.com/tasktrail/tasktrail-api/migrations"
)

// newTestDB connects to the database named by DATABASE_URL, applies the
// embedded migrations, and truncates the tasks table. Tests are skipped when
// DATABASE_URL is not set so the suite stays green without infrastructure.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set - skipping integration test")
	}

	db, err := sql.Open("pgx", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.FS)
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, "."))

	_, err = db.Exec("TRUNCATE tasks")
	require.NoError(t, err)

	return db
}

func createTask(t *testing.T, s *PostgresTaskStore, title string, mutate func(*domain.Task)) *domain.Task {
	t.Helper()

	task, err := domain.NewTask(title, domain.TaskPriorityLow, nil, nil)
	require.NoError(t, err)
	if mutate != nil {
		mutate(task)
	}
	require.NoError(t, s.Create(context.Background(), task))
	return task
}

func TestPostgresTaskStore_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	s := NewPostgresTaskStore(db, nil)
	ctx := context.Background()

	due := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	dep := createTask(t, s, "Dependency", nil)
	task := createTask(t, s, "Parent", func(task *domain.Task) {
		task.Priority = domain.TaskPriorityHigh
		task.DueDate = &due
		task.Dependencies = []uuid.UUID{dep.ID}
	})

	got, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Parent", got.Title)
	assert.Equal(t, domain.TaskPriorityHigh, got.Priority)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(due))
	assert.Equal(t, []uuid.UUID{dep.ID}, got.Dependencies)

	_, err = s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestPostgresTaskStore_GetByIDWithDependencies(t *testing.T) {
	db := newTestDB(t)
	s := NewPostgresTaskStore(db, nil)
	ctx := context.Background()

	dep := createTask(t, s, "Dependency", nil)
	dangling := uuid.New()
	parent := createTask(t, s, "Parent", func(task *domain.Task) {
		task.Dependencies = []uuid.UUID{dep.ID, dangling}
	})

	got, err := s.GetByIDWithDependencies(ctx, parent.ID)
	require.NoError(t, err)
	assert.Len(t, got.Task.Dependencies, 2)
	require.Len(t, got.Dependencies, 1)
	assert.Equal(t, dep.ID, got.Dependencies[0].ID)
}

func TestPostgresTaskStore_ListFilterAndAggregate(t *testing.T) {
	db := newTestDB(t)
	s := NewPostgresTaskStore(db, nil)
	ctx := context.Background()

	high := createTask(t, s, "Ship release", func(task *domain.Task) {
		task.Priority = domain.TaskPriorityHigh
	})
	createTask(t, s, "Write RELEASE notes", func(task *domain.Task) {
		task.Priority = domain.TaskPriorityHigh
	})
	createTask(t, s, "Water plants", nil)

	_, err := s.UpdateStatus(ctx, high.ID, domain.TaskStatusDone)
	require.NoError(t, err)

	filter := store.TaskFilter{
		TitleContains: "release",
		Priorities:    []domain.TaskPriority{domain.TaskPriorityHigh},
	}

	tasks, err := s.List(ctx, filter, 0, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	count, err := s.Count(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	counts, err := s.AggregateStatusCounts(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCounts{Total: 2, Done: 1, NotDone: 1}, counts)
}

func TestPostgresTaskStore_TitleFilterMatchesWildcardsLiterally(t *testing.T) {
	db := newTestDB(t)
	s := NewPostgresTaskStore(db, nil)
	ctx := context.Background()

	createTask(t, s, "Progress 50% done", nil)
	createTask(t, s, "Cleanup backlog", nil)

	// A literal % in the filter matches only titles containing %, never
	// everything.
	tasks, err := s.List(ctx, store.TaskFilter{TitleContains: "50%"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Progress 50% done", tasks[0].Title)

	tasks, err = s.List(ctx, store.TaskFilter{TitleContains: "%"}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestPostgresTaskStore_UpdateFields(t *testing.T) {
	db := newTestDB(t)
	s := NewPostgresTaskStore(db, nil)
	ctx := context.Background()

	task := createTask(t, s, "Old title", nil)

	title := "New title"
	priority := domain.TaskPriorityMedium
	updated, err := s.UpdateFields(ctx, task.ID, store.TaskUpdate{
		Title:    &title,
		Priority: &priority,
	})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, domain.TaskPriorityMedium, updated.Priority)

	// A recurring flag without a pattern must fail validation and leave the
	// stored row untouched.
	recurring := true
	_, err = s.UpdateFields(ctx, task.ID, store.TaskUpdate{IsRecurring: &recurring})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)

	got, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRecurring)
}

func TestPostgresTaskStore_DeleteAndPull(t *testing.T) {
	db := newTestDB(t)
	s := NewPostgresTaskStore(db, nil)
	ctx := context.Background()

	a := createTask(t, s, "A", nil)
	b := createTask(t, s, "B", func(task *domain.Task) {
		task.Dependencies = []uuid.UUID{a.ID}
	})

	deleted, err := s.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, deleted.ID)

	modified, err := s.PullDependencyReference(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	got, err := s.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Dependencies)
}

func TestPostgresTaskStore_FindOneByTitleAndDay(t *testing.T) {
	db := newTestDB(t)
	s := NewPostgresTaskStore(db, nil)
	ctx := context.Background()

	due := time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC)
	createTask(t, s, "Water plants", func(task *domain.Task) {
		task.DueDate = &due
	})

	sameDay := time.Date(2025, 3, 11, 22, 0, 0, 0, time.UTC)
	found, err := s.FindOne(ctx, store.TaskFilter{TitleEquals: "Water plants", DueOn: &sameDay})
	require.NoError(t, err)
	assert.Equal(t, "Water plants", found.Title)

	nextDay := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	_, err = s.FindOne(ctx, store.TaskFilter{TitleEquals: "Water plants", DueOn: &nextDay})
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}
