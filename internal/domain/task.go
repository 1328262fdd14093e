package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the completion state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusNotDone TaskStatus = "not_done"
	TaskStatusDone    TaskStatus = "done"
)

// TaskPriority represents the urgency level assigned to a task.
type TaskPriority string

// Possible task priority values
const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// RecurrencePattern represents the cadence at which a recurring task
// materializes new occurrences.
type RecurrencePattern string

// Possible recurrence pattern values
const (
	RecurrenceDaily   RecurrencePattern = "daily"
	RecurrenceWeekly  RecurrencePattern = "weekly"
	RecurrenceMonthly RecurrencePattern = "monthly"
)

// Common validation errors for Task
var (
	// ErrEmptyTaskID is returned when a task ID is empty or nil.
	ErrEmptyTaskID = errors.New("task ID cannot be empty")

	// ErrEmptyTaskTitle is returned when a task title is empty.
	ErrEmptyTaskTitle = errors.New("task title cannot be empty")

	// ErrInvalidTaskStatus is returned when a task status is not a known value.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidTaskPriority is returned when a task priority is not a known value.
	ErrInvalidTaskPriority = errors.New("invalid task priority")

	// ErrInvalidRecurrencePattern is returned when a recurrence pattern is not
	// a known value.
	ErrInvalidRecurrencePattern = errors.New("invalid recurrence pattern")

	// ErrRecurrencePatternRequired is returned when a task is marked recurring
	// but no recurrence pattern is set.
	ErrRecurrencePatternRequired = errors.New("recurring task requires a recurrence pattern")

	// ErrRecurrenceDueDateRequired is returned when a task is marked recurring
	// but has no due date. The scheduler derives the next occurrence from the
	// due date, so a recurring task without one can never materialize.
	ErrRecurrenceDueDateRequired = errors.New("recurring task requires a due date")

	// ErrEmptyDependencyID is returned when a dependency reference is the nil UUID.
	ErrEmptyDependencyID = errors.New("dependency ID cannot be empty")
)

// Task represents a unit of work tracked by the service. A task may declare
// dependencies on other tasks, in which case it cannot be completed until all
// of them are done. Recurring tasks act as templates from which the scheduler
// materializes new occurrences.
type Task struct {
	ID                uuid.UUID         `json:"id"`
	Title             string            `json:"title"`
	Status            TaskStatus        `json:"status"`
	Priority          TaskPriority      `json:"priority"`
	DueDate           *time.Time        `json:"due_date,omitempty"`
	IsRecurring       bool              `json:"is_recurring"`
	RecurrencePattern RecurrencePattern `json:"recurrence_pattern,omitempty"`
	Dependencies      []uuid.UUID       `json:"dependencies"`
	CronCreated       bool              `json:"cron_created"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// NewTask creates a new Task with the given title, priority, and optional
// attributes. It generates a new UUID for the task ID, sets the status to
// not_done, and sets the creation/update timestamps.
// Returns an error if validation fails.
func NewTask(
	title string,
	priority TaskPriority,
	dueDate *time.Time,
	dependencies []uuid.UUID,
) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:           uuid.New(),
		Title:        title,
		Status:       TaskStatusNotDone,
		Priority:     priority,
		DueDate:      dueDate,
		Dependencies: dependencies,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.Title == "" {
		return ErrEmptyTaskTitle
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if !isValidTaskPriority(t.Priority) {
		return ErrInvalidTaskPriority
	}

	if t.IsRecurring {
		if t.RecurrencePattern == "" {
			return ErrRecurrencePatternRequired
		}
		if t.DueDate == nil {
			return ErrRecurrenceDueDateRequired
		}
	}

	if t.RecurrencePattern != "" && !isValidRecurrencePattern(t.RecurrencePattern) {
		return ErrInvalidRecurrencePattern
	}

	for _, dep := range t.Dependencies {
		if dep == uuid.Nil {
			return ErrEmptyDependencyID
		}
	}

	return nil
}

// HasDependencies reports whether the task declares at least one dependency.
// This is the source of truth for the "is dependency" attribute exposed to
// clients; it is derived rather than stored so it can never drift from the
// dependency list itself.
func (t *Task) HasDependencies() bool {
	return len(t.Dependencies) > 0
}

// SetStatus updates the task's status and the UpdatedAt timestamp.
// Returns an error if the new status is invalid.
//
// Note: this only mutates the entity. The dependency-completion check belongs
// to the service layer, which has access to the resolved dependency tasks.
func (t *Task) SetStatus(status TaskStatus) error {
	if !isValidTaskStatus(status) {
		return ErrInvalidTaskStatus
	}

	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// isValidTaskStatus checks if the provided status is one of the defined values.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusNotDone, TaskStatusDone:
		return true
	default:
		return false
	}
}

// isValidTaskPriority checks if the provided priority is one of the defined values.
func isValidTaskPriority(priority TaskPriority) bool {
	switch priority {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	default:
		return false
	}
}

// isValidRecurrencePattern checks if the provided pattern is one of the defined values.
func isValidRecurrencePattern(pattern RecurrencePattern) bool {
	switch pattern {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	default:
		return false
	}
}

// ParseTaskStatus converts a string into a TaskStatus.
// Returns ErrInvalidTaskStatus if the string is not a known status value.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !isValidTaskStatus(status) {
		return "", ErrInvalidTaskStatus
	}
	return status, nil
}

// ParseTaskPriority converts a string into a TaskPriority.
// Returns ErrInvalidTaskPriority if the string is not a known priority value.
func ParseTaskPriority(s string) (TaskPriority, error) {
	priority := TaskPriority(s)
	if !isValidTaskPriority(priority) {
		return "", ErrInvalidTaskPriority
	}
	return priority, nil
}

// ParseRecurrencePattern converts a string into a RecurrencePattern.
// Returns ErrInvalidRecurrencePattern if the string is not a known pattern value.
func ParseRecurrencePattern(s string) (RecurrencePattern, error) {
	pattern := RecurrencePattern(s)
	if !isValidRecurrencePattern(pattern) {
		return "", ErrInvalidRecurrencePattern
	}
	return pattern, nil
}

// NextDueDate computes the due date of the next occurrence for the given
// pattern: daily advances one day, weekly seven days, monthly one calendar
// month. Monthly advancement clamps to the last valid day of the target month
// (e.g. Jan 31 -> Feb 28).
func NextDueDate(current time.Time, pattern RecurrencePattern) time.Time {
	switch pattern {
	case RecurrenceDaily:
		return current.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		return current.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return addMonthClamped(current)
	default:
		// Unknown patterns fall back to daily cadence; the caller is
		// responsible for logging the data-quality warning.
		return current.AddDate(0, 0, 1)
	}
}

// addMonthClamped advances t by one calendar month, clamping the day of month
// so that overflow never spills into the month after next.
func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNext.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	hour, min, sec := t.Clock()
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}
