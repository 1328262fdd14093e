package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tasktrail/tasktrail-api/internal/domain"
)

// TaskWithDependencies bundles a task with its resolved dependency tasks so
// callers can evaluate completion state without issuing a second round trip.
// Dangling references (ids whose task no longer exists) are omitted from
// Dependencies; callers that care can compare len(Dependencies) against
// len(Task.Dependencies).
type TaskWithDependencies struct {
	Task         *domain.Task
	Dependencies []*domain.Task
}

// StatusCounts holds aggregate completion statistics computed by the store
// over a filtered set of tasks.
type StatusCounts struct {
	Total   int64 `json:"total"`
	Done    int64 `json:"completed"`
	NotDone int64 `json:"incomplete"`
}

// TaskUpdate describes a partial update to a task. Nil fields are left
// untouched. Status is deliberately absent: status transitions go through
// UpdateStatus so the dependency-completion invariant is always checked.
type TaskUpdate struct {
	Title             *string
	Priority          *domain.TaskPriority
	DueDate           *time.Time
	ClearDueDate      bool
	IsRecurring       *bool
	RecurrencePattern *domain.RecurrencePattern
	Dependencies      *[]uuid.UUID
}

// TaskStore defines the interface for task data persistence.
// Implementations must provide atomic per-task read-modify-write semantics
// and an atomic bulk dependency-reference removal.
type TaskStore interface {
	// Create saves a new task to the store. If the task ID is nil a new one
	// is assigned. CreatedAt/UpdatedAt are set by the store.
	// Returns ErrInvalidEntity (wrapping the domain error) if the task fails
	// domain validation.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetByIDWithDependencies retrieves a task together with its resolved
	// dependency tasks in a single logical fetch.
	// Returns ErrTaskNotFound if the task itself does not exist.
	GetByIDWithDependencies(ctx context.Context, id uuid.UUID) (*TaskWithDependencies, error)

	// List retrieves tasks matching the filter, ordered most-recently-updated
	// first, with offset/limit paging. A limit of 0 means no limit.
	List(ctx context.Context, filter TaskFilter, offset, limit int) ([]*domain.Task, error)

	// ListWithDependencies behaves like List but resolves each task's
	// dependency references into full task objects.
	ListWithDependencies(
		ctx context.Context,
		filter TaskFilter,
		offset, limit int,
	) ([]*TaskWithDependencies, error)

	// Count returns the number of tasks matching the filter.
	Count(ctx context.Context, filter TaskFilter) (int64, error)

	// AggregateStatusCounts computes total/done/not-done counts over the
	// tasks matching the filter in a single aggregate pass, without loading
	// the rows themselves.
	AggregateStatusCounts(ctx context.Context, filter TaskFilter) (StatusCounts, error)

	// UpdateStatus atomically sets a task's status and bumps UpdatedAt.
	// Returns the updated task, or ErrTaskNotFound if it does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) (*domain.Task, error)

	// UpdateFields atomically applies a partial update to a task and bumps
	// UpdatedAt. Status changes are not expressible through TaskUpdate.
	// Returns the updated task, or ErrTaskNotFound if it does not exist.
	// Returns ErrInvalidEntity if the resulting task fails domain validation.
	UpdateFields(ctx context.Context, id uuid.UUID, update TaskUpdate) (*domain.Task, error)

	// Delete removes a task from the store by its ID and returns the deleted
	// task, or ErrTaskNotFound if it does not exist. It does NOT touch other
	// tasks' dependency lists; callers follow up with PullDependencyReference.
	Delete(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// PullDependencyReference removes the given task ID from the dependency
	// list of every task that references it, in a single bulk update.
	// Returns the number of tasks modified.
	PullDependencyReference(ctx context.Context, id uuid.UUID) (int64, error)

	// FindOne returns the most recently updated task matching the filter, or
	// ErrTaskNotFound if none matches. Used by the recurrence scheduler for
	// duplicate-occurrence detection.
	FindOne(ctx context.Context, filter TaskFilter) (*domain.Task, error)
}
