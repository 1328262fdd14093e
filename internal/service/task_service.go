package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tasktrail/tasktrail-api/internal/domain"
	"github.com/tasktrail/tasktrail-api/internal/store"
)

// DefaultPageSize is the number of tasks per search page when the caller does
// not specify one.
const DefaultPageSize = 10

// MaxPageSize caps the page size a caller may request.
const MaxPageSize = 100

// CreateTaskInput carries the attributes of a task to be created. Status is
// not accepted: new tasks always start not done.
type CreateTaskInput struct {
	Title             string
	Priority          domain.TaskPriority
	DueDate           *time.Time
	IsRecurring       bool
	RecurrencePattern domain.RecurrencePattern
	Dependencies      []uuid.UUID
}

// UpdateTaskInput carries a partial update to a task's attributes. Nil fields
// are left untouched. Status is not expressible here; transitions go through
// SetTaskStatus.
type UpdateTaskInput struct {
	Title             *string
	Priority          *domain.TaskPriority
	DueDate           *time.Time
	ClearDueDate      bool
	IsRecurring       *bool
	RecurrencePattern *domain.RecurrencePattern
	Dependencies      *[]uuid.UUID
}

// SearchParams bundles a task filter with 1-indexed pagination.
type SearchParams struct {
	Filter   store.TaskFilter
	Page     int
	PageSize int
}

// Pagination describes the page window of a search result. TotalPages is 0
// when nothing matched the filter.
type Pagination struct {
	TotalTasks  int64 `json:"totalTasks"`
	TotalPages  int   `json:"totalPages"`
	CurrentPage int   `json:"currentPage"`
	PageSize    int   `json:"pageSize"`
}

// SearchResult holds one page of matching tasks along with aggregate
// statistics computed over the entire filtered set, not just the page.
type SearchResult struct {
	Tasks      []*store.TaskWithDependencies `json:"tasks"`
	Stats      store.StatusCounts            `json:"stats"`
	Pagination Pagination                    `json:"pagination"`
}

// TaskRef is a lightweight task reference used by listings that only need
// identity and title, such as the incomplete-task picker.
type TaskRef struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

// TaskService defines the business operations over tasks.
type TaskService interface {
	// CreateTask validates the input and persists a new task.
	CreateTask(ctx context.Context, input CreateTaskInput) (*domain.Task, error)

	// GetTask retrieves a task with its dependencies resolved.
	// Returns ErrTaskNotFound if it does not exist.
	GetTask(ctx context.Context, id uuid.UUID) (*store.TaskWithDependencies, error)

	// ListTasks returns all tasks with dependencies resolved, most recently
	// updated first.
	ListTasks(ctx context.Context) ([]*store.TaskWithDependencies, error)

	// ListIncompleteTasks returns id/title references for every task that is
	// not done, for use as dependency candidates.
	ListIncompleteTasks(ctx context.Context) ([]TaskRef, error)

	// SearchTasks returns one page of tasks matching the filter along with
	// status statistics aggregated over the whole filtered set.
	SearchTasks(ctx context.Context, params SearchParams) (*SearchResult, error)

	// UpdateTaskFields applies a partial update to a task's attributes.
	// Returns ErrTaskNotFound if it does not exist.
	UpdateTaskFields(ctx context.Context, id uuid.UUID, input UpdateTaskInput) (*domain.Task, error)

	// DeleteTask removes a task and prunes references to it from every other
	// task's dependency list. Returns ErrTaskNotFound if it does not exist.
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// SetTaskStatus transitions a task to the given status. Marking a task
	// done fails with *DependencyBlockedError while any of its dependencies
	// is not done; reopening is always allowed.
	SetTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) (*domain.Task, error)
}

// taskService implements the TaskService interface.
type taskService struct {
	taskStore store.TaskStore
	logger    *slog.Logger
}

// NewTaskService creates a new task service with the given dependencies.
func NewTaskService(taskStore store.TaskStore, logger *slog.Logger) (TaskService, error) {
	if taskStore == nil {
		return nil, fmt.Errorf("taskStore cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &taskService{
		taskStore: taskStore,
		logger:    logger.With(slog.String("component", "task_service")),
	}, nil
}

func (s *taskService) CreateTask(ctx context.Context, input CreateTaskInput) (*domain.Task, error) {
	task, err := domain.NewTask(input.Title, input.Priority, input.DueDate, input.Dependencies)
	if err != nil {
		return nil, newTaskServiceError("create_task", "invalid task", err)
	}

	task.IsRecurring = input.IsRecurring
	task.RecurrencePattern = input.RecurrencePattern
	if err := task.Validate(); err != nil {
		return nil, newTaskServiceError("create_task", "invalid task", err)
	}

	if err := s.taskStore.Create(ctx, task); err != nil {
		return nil, newTaskServiceError("create_task", "failed to save task", err)
	}

	s.logger.DebugContext(ctx, "task created",
		slog.String("task_id", task.ID.String()),
		slog.Int("dependency_count", len(task.Dependencies)))

	return task, nil
}

func (s *taskService) GetTask(ctx context.Context, id uuid.UUID) (*store.TaskWithDependencies, error) {
	task, err := s.taskStore.GetByIDWithDependencies(ctx, id)
	if err != nil {
		return nil, newTaskServiceError("get_task", "failed to retrieve task", err)
	}
	return task, nil
}

func (s *taskService) ListTasks(ctx context.Context) ([]*store.TaskWithDependencies, error) {
	tasks, err := s.taskStore.ListWithDependencies(ctx, store.TaskFilter{}, 0, 0)
	if err != nil {
		return nil, newTaskServiceError("list_tasks", "failed to list tasks", err)
	}
	return tasks, nil
}

func (s *taskService) ListIncompleteTasks(ctx context.Context) ([]TaskRef, error) {
	filter := store.TaskFilter{Statuses: []domain.TaskStatus{domain.TaskStatusNotDone}}
	tasks, err := s.taskStore.List(ctx, filter, 0, 0)
	if err != nil {
		return nil, newTaskServiceError("list_incomplete_tasks", "failed to list tasks", err)
	}

	refs := make([]TaskRef, 0, len(tasks))
	for _, task := range tasks {
		refs = append(refs, TaskRef{ID: task.ID, Title: task.Title})
	}
	return refs, nil
}

func (s *taskService) SearchTasks(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if err := params.Filter.Validate(); err != nil {
		return nil, newTaskServiceError("search_tasks", "invalid filter", err)
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	// Statistics are computed over the whole filtered set in one aggregate
	// pass; only the requested page of rows is loaded.
	counts, err := s.taskStore.AggregateStatusCounts(ctx, params.Filter)
	if err != nil {
		return nil, newTaskServiceError("search_tasks", "failed to aggregate task counts", err)
	}

	offset := (page - 1) * pageSize
	tasks, err := s.taskStore.ListWithDependencies(ctx, params.Filter, offset, pageSize)
	if err != nil {
		return nil, newTaskServiceError("search_tasks", "failed to list tasks", err)
	}

	totalPages := 0
	if counts.Total > 0 {
		totalPages = int((counts.Total + int64(pageSize) - 1) / int64(pageSize))
	}

	return &SearchResult{
		Tasks: tasks,
		Stats: counts,
		Pagination: Pagination{
			TotalTasks:  counts.Total,
			TotalPages:  totalPages,
			CurrentPage: page,
			PageSize:    pageSize,
		},
	}, nil
}

func (s *taskService) UpdateTaskFields(
	ctx context.Context,
	id uuid.UUID,
	input UpdateTaskInput,
) (*domain.Task, error) {
	update := store.TaskUpdate{
		Title:             input.Title,
		Priority:          input.Priority,
		DueDate:           input.DueDate,
		ClearDueDate:      input.ClearDueDate,
		IsRecurring:       input.IsRecurring,
		RecurrencePattern: input.RecurrencePattern,
		Dependencies:      input.Dependencies,
	}

	task, err := s.taskStore.UpdateFields(ctx, id, update)
	if err != nil {
		return nil, newTaskServiceError("update_task", "failed to update task", err)
	}

	return task, nil
}

func (s *taskService) DeleteTask(ctx context.Context, id uuid.UUID) error {
	if _, err := s.taskStore.Delete(ctx, id); err != nil {
		return newTaskServiceError("delete_task", "failed to delete task", err)
	}

	// Pruning failure after a successful delete must not surface as a failed
	// delete: the task is gone. Log loudly so the stale references get fixed.
	modified, err := s.taskStore.PullDependencyReference(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to prune dependency references after delete",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		return nil
	}

	if modified > 0 {
		s.logger.DebugContext(ctx, "pruned dependency references",
			slog.String("task_id", id.String()),
			slog.Int64("tasks_modified", modified))
	}

	return nil
}

func (s *taskService) SetTaskStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.TaskStatus,
) (*domain.Task, error) {
	if _, err := domain.ParseTaskStatus(string(status)); err != nil {
		return nil, newTaskServiceError("set_status", "invalid status", err)
	}

	if status == domain.TaskStatusDone {
		withDeps, err := s.taskStore.GetByIDWithDependencies(ctx, id)
		if err != nil {
			return nil, newTaskServiceError("set_status", "failed to retrieve task", err)
		}

		if blocking := incompleteDependencies(withDeps); len(blocking) > 0 {
			return nil, &DependencyBlockedError{TaskID: id, Blocking: blocking}
		}
	}

	task, err := s.taskStore.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, newTaskServiceError("set_status", "failed to update status", err)
	}

	s.logger.DebugContext(ctx, "task status updated",
		slog.String("task_id", id.String()),
		slog.String("status", string(status)))

	return task, nil
}

// incompleteDependencies returns one entry per referenced dependency that is
// not done. A reference whose task no longer exists resolves to an entry with
// an empty title: an unverifiable dependency cannot be assumed complete.
func incompleteDependencies(withDeps *store.TaskWithDependencies) []BlockingDependency {
	resolved := make(map[uuid.UUID]*domain.Task, len(withDeps.Dependencies))
	for _, dep := range withDeps.Dependencies {
		resolved[dep.ID] = dep
	}

	var blocking []BlockingDependency
	seen := make(map[uuid.UUID]struct{}, len(withDeps.Task.Dependencies))
	for _, depID := range withDeps.Task.Dependencies {
		if _, dup := seen[depID]; dup {
			continue
		}
		seen[depID] = struct{}{}

		dep, ok := resolved[depID]
		if !ok {
			blocking = append(blocking, BlockingDependency{ID: depID})
			continue
		}
		if dep.Status != domain.TaskStatusDone {
			blocking = append(blocking, BlockingDependency{ID: dep.ID, Title: dep.Title})
		}
	}
	return blocking
}
