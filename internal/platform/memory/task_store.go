// Package memory provides an in-memory implementation of store.TaskStore.
// It backs the "memory" database driver in configuration and is also used as
// a deterministic store in service and scheduler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tasktrail/tasktrail-api/internal/domain"
	"github.com/tasktrail/tasktrail-api/internal/store"
)

// TaskStore is a thread-safe, map-backed store.TaskStore implementation.
// All tasks are deep-copied on the way in and out so callers can never alias
// internal state.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// Ensure TaskStore implements store.TaskStore interface
var _ store.TaskStore = (*TaskStore)(nil)

// Create implements store.TaskStore.Create.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}

	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// GetByIDWithDependencies implements store.TaskStore.GetByIDWithDependencies.
// Dangling dependency references are omitted from the resolved slice.
func (s *TaskStore) GetByIDWithDependencies(
	ctx context.Context,
	id uuid.UUID,
) (*store.TaskWithDependencies, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return s.resolveLocked(task), nil
}

// List implements store.TaskStore.List.
func (s *TaskStore) List(
	ctx context.Context,
	filter store.TaskFilter,
	offset, limit int,
) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchSortedLocked(filter)
	matched = page(matched, offset, limit)

	out := make([]*domain.Task, 0, len(matched))
	for _, task := range matched {
		out = append(out, cloneTask(task))
	}
	return out, nil
}

// ListWithDependencies implements store.TaskStore.ListWithDependencies.
func (s *TaskStore) ListWithDependencies(
	ctx context.Context,
	filter store.TaskFilter,
	offset, limit int,
) ([]*store.TaskWithDependencies, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchSortedLocked(filter)
	matched = page(matched, offset, limit)

	out := make([]*store.TaskWithDependencies, 0, len(matched))
	for _, task := range matched {
		out = append(out, s.resolveLocked(task))
	}
	return out, nil
}

// Count implements store.TaskStore.Count.
func (s *TaskStore) Count(ctx context.Context, filter store.TaskFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, task := range s.tasks {
		if filter.Matches(task) {
			count++
		}
	}
	return count, nil
}

// AggregateStatusCounts implements store.TaskStore.AggregateStatusCounts.
func (s *TaskStore) AggregateStatusCounts(
	ctx context.Context,
	filter store.TaskFilter,
) (store.StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts store.StatusCounts
	for _, task := range s.tasks {
		if !filter.Matches(task) {
			continue
		}
		counts.Total++
		if task.Status == domain.TaskStatusDone {
			counts.Done++
		} else {
			counts.NotDone++
		}
	}
	return counts, nil
}

// UpdateStatus implements store.TaskStore.UpdateStatus.
func (s *TaskStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.TaskStatus,
) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	if err := task.SetStatus(status); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	return cloneTask(task), nil
}

// UpdateFields implements store.TaskStore.UpdateFields.
func (s *TaskStore) UpdateFields(
	ctx context.Context,
	id uuid.UUID,
	update store.TaskUpdate,
) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	// Apply the update to a copy first so a validation failure leaves the
	// stored task untouched.
	updated := cloneTask(current)
	applyUpdate(updated, update)
	updated.UpdatedAt = time.Now().UTC()

	if err := updated.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.tasks[id] = updated
	return cloneTask(updated), nil
}

// Delete implements store.TaskStore.Delete.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	delete(s.tasks, id)
	return cloneTask(task), nil
}

// PullDependencyReference implements store.TaskStore.PullDependencyReference.
func (s *TaskStore) PullDependencyReference(ctx context.Context, id uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var modified int64
	for _, task := range s.tasks {
		pruned := task.Dependencies[:0:0]
		for _, dep := range task.Dependencies {
			if dep != id {
				pruned = append(pruned, dep)
			}
		}
		if len(pruned) != len(task.Dependencies) {
			task.Dependencies = pruned
			task.UpdatedAt = time.Now().UTC()
			modified++
		}
	}
	return modified, nil
}

// FindOne implements store.TaskStore.FindOne.
func (s *TaskStore) FindOne(
	ctx context.Context,
	filter store.TaskFilter,
) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchSortedLocked(filter)
	if len(matched) == 0 {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(matched[0]), nil
}

// matchSortedLocked returns all tasks matching the filter, most recently
// updated first. Ties are broken by ID so paging stays deterministic.
// Callers must hold at least the read lock.
func (s *TaskStore) matchSortedLocked(filter store.TaskFilter) []*domain.Task {
	matched := make([]*domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if filter.Matches(task) {
			matched = append(matched, task)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	return matched
}

// resolveLocked builds a TaskWithDependencies for the given task, skipping
// dangling references. Callers must hold at least the read lock.
func (s *TaskStore) resolveLocked(task *domain.Task) *store.TaskWithDependencies {
	resolved := make([]*domain.Task, 0, len(task.Dependencies))
	for _, depID := range task.Dependencies {
		if dep, ok := s.tasks[depID]; ok {
			resolved = append(resolved, cloneTask(dep))
		}
	}
	return &store.TaskWithDependencies{
		Task:         cloneTask(task),
		Dependencies: resolved,
	}
}

func page(tasks []*domain.Task, offset, limit int) []*domain.Task {
	if offset >= len(tasks) {
		return nil
	}
	tasks = tasks[offset:]
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}
	return tasks
}

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

func cloneTask(task *domain.Task) *domain.Task {
	clone := *task
	if task.DueDate != nil {
		due := *task.DueDate
		clone.DueDate = &due
	}
	clone.Dependencies = append([]uuid.UUID(nil), task.Dependencies...)
	return &clone
}
