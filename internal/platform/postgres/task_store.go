package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tasktrail/tasktrail-api/internal/domain"
	"github.com/tasktrail/tasktrail-api/internal/store"
)

// taskColumns is the canonical column list for task queries; scanTask must
// stay in sync with it.
const taskColumns = `id, title, status, priority, due_date, is_recurring,
	recurrence_pattern, dependencies, cron_created, created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
//
// Dependencies are stored as a JSONB array of UUID strings so the bulk
// reference pull can use the jsonb containment and element-removal operators.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// txBeginner is satisfied by *sql.DB but not by *sql.Tx; a store bound to a
// transaction joins it instead of opening a nested one.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface. It accepts a database connection or transaction that
// should be initialized and managed by the caller. If logger is nil, a
// default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	deps, err := marshalDependencies(task.Dependencies)
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (id, title, status, priority, due_date, is_recurring,
			recurrence_pattern, dependencies, cron_created, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Status,
		task.Priority,
		task.DueDate,
		task.IsRecurring,
		nullPattern(task.RecurrencePattern),
		deps,
		task.CronCreated,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to create task", "task_id", task.ID, "error", err)
		return MapError(err)
	}

	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1`, taskColumns)

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return task, nil
}

// GetByIDWithDependencies implements store.TaskStore.GetByIDWithDependencies.
func (s *PostgresTaskStore) GetByIDWithDependencies(
	ctx context.Context,
	id uuid.UUID,
) (*store.TaskWithDependencies, error) {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolveDependencies(ctx, []*domain.Task{task})
	if err != nil {
		return nil, err
	}
	return resolved[0], nil
}

// List implements store.TaskStore.List.
func (s *PostgresTaskStore) List(
	ctx context.Context,
	filter store.TaskFilter,
	offset, limit int,
) ([]*domain.Task, error) {
	where, args := buildWhere(filter)

	query := fmt.Sprintf(
		`SELECT %s FROM tasks %s ORDER BY updated_at DESC, id`,
		taskColumns, where,
	)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to list tasks", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return tasks, nil
}

// ListWithDependencies implements store.TaskStore.ListWithDependencies.
// Dependency resolution is performed with a single additional query for the
// whole page, never one query per task.
func (s *PostgresTaskStore) ListWithDependencies(
	ctx context.Context,
	filter store.TaskFilter,
	offset, limit int,
) ([]*store.TaskWithDependencies, error) {
	tasks, err := s.List(ctx, filter, offset, limit)
	if err != nil {
		return nil, err
	}
	return s.resolveDependencies(ctx, tasks)
}

// Count implements store.TaskStore.Count.
func (s *PostgresTaskStore) Count(ctx context.Context, filter store.TaskFilter) (int64, error) {
	where, args := buildWhere(filter)

	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tasks %s`, where)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, MapError(err)
	}
	return count, nil
}

// AggregateStatusCounts implements store.TaskStore.AggregateStatusCounts.
// The counts are computed in a single aggregate pass in the database.
func (s *PostgresTaskStore) AggregateStatusCounts(
	ctx context.Context,
	filter store.TaskFilter,
) (store.StatusCounts, error) {
	where, args := buildWhere(filter)

	query := fmt.Sprintf(`
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'done'),
			COUNT(*) FILTER (WHERE status = 'not_done')
		FROM tasks %s`, where)

	var counts store.StatusCounts
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&counts.Total, &counts.Done, &counts.NotDone)
	if err != nil {
		return store.StatusCounts{}, MapError(err)
	}
	return counts, nil
}

// UpdateStatus implements store.TaskStore.UpdateStatus.
func (s *PostgresTaskStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.TaskStatus,
) (*domain.Task, error) {
	query := fmt.Sprintf(`
		UPDATE tasks
		SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING %s`, taskColumns)

	task, err := scanTask(s.db.QueryRowContext(ctx, query, status, time.Now().UTC(), id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return task, nil
}

// UpdateFields implements store.TaskStore.UpdateFields.
// The read-modify-write runs in a transaction with the row locked so the
// combined state can be validated before the write becomes visible.
func (s *PostgresTaskStore) UpdateFields(
	ctx context.Context,
	id uuid.UUID,
	update store.TaskUpdate,
) (*domain.Task, error) {
	beginner, ok := s.db.(txBeginner)
	if !ok {
		// Already inside a caller-managed transaction; the row lock below
		// still serializes concurrent updates.
		return s.updateFieldsIn(ctx, s.db, id, update)
	}

	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = tx.Rollback() }()

	task, err := s.updateFieldsIn(ctx, tx, id, update)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, MapError(err)
	}
	return task, nil
}

// updateFieldsIn performs the locked read-modify-write against the given
// query target.
func (s *PostgresTaskStore) updateFieldsIn(
	ctx context.Context,
	q store.DBTX,
	id uuid.UUID,
	update store.TaskUpdate,
) (*domain.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1 FOR UPDATE`, taskColumns)
	current, err := scanTask(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}

	applyUpdate(current, update)
	current.UpdatedAt = time.Now().UTC()

	if err := current.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	deps, err := marshalDependencies(current.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	_, err = q.ExecContext(ctx, `
		UPDATE tasks
		SET title = $1, priority = $2, due_date = $3, is_recurring = $4,
			recurrence_pattern = $5, dependencies = $6, updated_at = $7
		WHERE id = $8`,
		current.Title,
		current.Priority,
		current.DueDate,
		current.IsRecurring,
		nullPattern(current.RecurrencePattern),
		deps,
		current.UpdatedAt,
		id,
	)
	if err != nil {
		return nil, MapError(err)
	}

	return current, nil
}

// Delete implements store.TaskStore.Delete.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := fmt.Sprintf(`DELETE FROM tasks WHERE id = $1 RETURNING %s`, taskColumns)

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return task, nil
}

// PullDependencyReference implements store.TaskStore.PullDependencyReference.
// A single bulk UPDATE removes the id from every dependency list that
// contains it; rows without the reference are untouched.
func (s *PostgresTaskStore) PullDependencyReference(
	ctx context.Context,
	id uuid.UUID,
) (int64, error) {
	query := `
		UPDATE tasks
		SET dependencies = dependencies - $1::text, updated_at = $2
		WHERE dependencies @> to_jsonb($1::text)
	`

	result, err := s.db.ExecContext(ctx, query, id.String(), time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to pull dependency reference", "task_id", id, "error", err)
		return 0, MapError(err)
	}

	modified, err := result.RowsAffected()
	if err != nil {
		return 0, MapError(err)
	}
	return modified, nil
}

// FindOne implements store.TaskStore.FindOne.
func (s *PostgresTaskStore) FindOne(
	ctx context.Context,
	filter store.TaskFilter,
) (*domain.Task, error) {
	tasks, err := s.List(ctx, filter, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, store.ErrTaskNotFound
	}
	return tasks[0], nil
}

// resolveDependencies fetches every dependency referenced by the given tasks
// in one query and assembles TaskWithDependencies values. Dangling
// references are silently omitted from the resolved slices.
func (s *PostgresTaskStore) resolveDependencies(
	ctx context.Context,
	tasks []*domain.Task,
) ([]*store.TaskWithDependencies, error) {
	ids := make(map[uuid.UUID]struct{})
	for _, task := range tasks {
		for _, dep := range task.Dependencies {
			ids[dep] = struct{}{}
		}
	}

	byID := make(map[uuid.UUID]*domain.Task, len(ids))
	if len(ids) > 0 {
		placeholders := make([]string, 0, len(ids))
		args := make([]any, 0, len(ids))
		i := 1
		for id := range ids {
			placeholders = append(placeholders, fmt.Sprintf("$%d", i))
			args = append(args, id)
			i++
		}

		query := fmt.Sprintf(
			`SELECT %s FROM tasks WHERE id IN (%s)`,
			taskColumns, strings.Join(placeholders, ", "),
		)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, MapError(err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			dep, err := scanTask(rows)
			if err != nil {
				return nil, MapError(err)
			}
			byID[dep.ID] = dep
		}
		if err := rows.Err(); err != nil {
			return nil, MapError(err)
		}
	}

	out := make([]*store.TaskWithDependencies, 0, len(tasks))
	for _, task := range tasks {
		resolved := make([]*domain.Task, 0, len(task.Dependencies))
		for _, depID := range task.Dependencies {
			if dep, ok := byID[depID]; ok {
				resolved = append(resolved, dep)
			}
		}
		out = append(out, &store.TaskWithDependencies{Task: task, Dependencies: resolved})
	}
	return out, nil
}

// buildWhere compiles a TaskFilter into a SQL WHERE clause and its
// positional arguments. The filter is a closed set of predicates, so this is
// the only place filter semantics are translated to SQL.
func buildWhere(filter store.TaskFilter) (string, []any) {
	var clauses []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.TitleContains != "" {
		clauses = append(clauses, fmt.Sprintf("title ILIKE '%%' || %s || '%%'", arg(escapeLike(filter.TitleContains))))
	}
	if filter.TitleEquals != "" {
		clauses = append(clauses, fmt.Sprintf("title = %s", arg(filter.TitleEquals)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			placeholders = append(placeholders, arg(string(status)))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, 0, len(filter.Priorities))
		for _, priority := range filter.Priorities {
			placeholders = append(placeholders, arg(string(priority)))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.IsRecurring != nil {
		clauses = append(clauses, fmt.Sprintf("is_recurring = %s", arg(*filter.IsRecurring)))
	}
	if filter.HasDependencies != nil {
		clauses = append(clauses, fmt.Sprintf("(jsonb_array_length(dependencies) > 0) = %s", arg(*filter.HasDependencies)))
	}
	if filter.CronCreated != nil {
		clauses = append(clauses, fmt.Sprintf("cron_created = %s", arg(*filter.CronCreated)))
	}
	if filter.DueOn != nil {
		day := filter.DueOn.UTC()
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		dayEnd := dayStart.AddDate(0, 0, 1)
		clauses = append(clauses, fmt.Sprintf("due_date >= %s", arg(dayStart)))
		clauses = append(clauses, fmt.Sprintf("due_date < %s", arg(dayEnd)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// likeEscaper escapes the LIKE wildcard characters so a title filter matches
// its substring literally, the same way TaskFilter.Matches does.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one row in taskColumns order into a domain.Task.
func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task    domain.Task
		dueDate sql.NullTime
		pattern sql.NullString
		deps    []byte
	)

	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Status,
		&task.Priority,
		&dueDate,
		&task.IsRecurring,
		&pattern,
		&deps,
		&task.CronCreated,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dueDate.Valid {
		due := dueDate.Time.UTC()
		task.DueDate = &due
	}
	if pattern.Valid {
		task.RecurrencePattern = domain.RecurrencePattern(pattern.String)
	}
	if err := json.Unmarshal(deps, &task.Dependencies); err != nil {
		return nil, fmt.Errorf("failed to decode dependencies: %w", err)
	}

	return &task, nil
}

// marshalDependencies encodes the dependency list as a JSONB array of UUID
// strings. A nil list encodes as an empty array, never JSON null.
func marshalDependencies(deps []uuid.UUID) ([]byte, error) {
	if deps == nil {
		deps = []uuid.UUID{}
	}
	return json.Marshal(deps)
}

// nullPattern converts an empty recurrence pattern to SQL NULL.
func nullPattern(pattern domain.RecurrencePattern) sql.NullString {
	if pattern == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(pattern), Valid: true}
}

// applyUpdate copies the non-nil fields of a TaskUpdate onto the task.
func applyUpdate(task *domain.Task, update store.TaskUpdate) {
	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.ClearDueDate {
		task.DueDate = nil
	} else if update.DueDate != nil {
		due := *update.DueDate
		task.DueDate = &due
	}
	if update.IsRecurring != nil {
		task.IsRecurring = *update.IsRecurring
	}
	if update.RecurrencePattern != nil {
		task.RecurrencePattern = *update.RecurrencePattern
	}
	if update.Dependencies != nil {
		task.Dependencies = append([]uuid.UUID(nil), (*update.Dependencies)...)
	}
}
