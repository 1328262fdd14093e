package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tasktrail/tasktrail-api/internal/store"
)

// Common sentinel errors for TaskService
var (
	// ErrTaskNotFound indicates that the task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrStatusNotUpdatable is returned when a general field update attempts
	// to change a task's status. Status transitions must go through
	// SetTaskStatus so the dependency-completion invariant is checked.
	ErrStatusNotUpdatable = errors.New("status cannot be changed through a field update")
)

// BlockingDependency identifies one incomplete dependency that prevented a
// completion attempt. Title is empty for dangling references, which are
// conservatively treated as not done.
type BlockingDependency struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title,omitempty"`
}

// DependencyBlockedError is returned when a task cannot be marked done
// because one or more of its dependencies are not done.
type DependencyBlockedError struct {
	TaskID   uuid.UUID
	Blocking []BlockingDependency
}

// Error implements the error interface for DependencyBlockedError.
func (e *DependencyBlockedError) Error() string {
	ids := make([]string, 0, len(e.Blocking))
	for _, dep := range e.Blocking {
		ids = append(ids, dep.ID.String())
	}
	return fmt.Sprintf(
		"task %s cannot be completed: incomplete dependencies [%s]",
		e.TaskID, strings.Join(ids, ", "),
	)
}

// TaskServiceError wraps errors from the task service with context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "create_task", "set_status")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// newTaskServiceError creates a new TaskServiceError.
// It returns known sentinel errors directly without wrapping.
func newTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrTaskNotFound) {
		return ErrTaskNotFound
	}

	// Map store-level not-found to the service-level sentinel.
	if errors.Is(err, store.ErrTaskNotFound) {
		return ErrTaskNotFound
	}

	var blocked *DependencyBlockedError
	if errors.As(err, &blocked) {
		return err
	}

	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
