package store

import (
	"strings"
	"time"

	"github.com/tasktrail/tasktrail-api/internal/domain"
)

// TaskFilter describes the predicate applied to task queries. All set fields
// are combined conjunctively (AND). The zero value matches every task.
//
// The filter is a closed, explicitly-typed set of predicates: there is no
// generic key/value escape hatch, so an unrecognized filter can never reach
// a store implementation.
type TaskFilter struct {
	// TitleContains matches tasks whose title contains the given substring,
	// case-insensitively.
	TitleContains string

	// TitleEquals matches tasks whose title is exactly the given string.
	TitleEquals string

	// Statuses matches tasks whose status is any of the given values.
	Statuses []domain.TaskStatus

	// Priorities matches tasks whose priority is any of the given values.
	Priorities []domain.TaskPriority

	// IsRecurring, when non-nil, matches tasks whose recurring flag equals
	// the pointed-to value.
	IsRecurring *bool

	// HasDependencies, when non-nil, matches tasks by whether their
	// dependency list is non-empty. This is the "is dependency" filter
	// evaluated against derived state rather than a stored flag.
	HasDependencies *bool

	// CronCreated, when non-nil, matches tasks by whether they were
	// materialized by the recurrence scheduler.
	CronCreated *bool

	// DueOn, when non-nil, matches tasks whose due date falls on the same
	// calendar day (UTC) as the given time.
	DueOn *time.Time
}

// Validate checks that every enum member in the filter is a known value.
// Returns the corresponding domain validation error for the first invalid
// member found.
func (f TaskFilter) Validate() error {
	for _, s := range f.Statuses {
		if _, err := domain.ParseTaskStatus(string(s)); err != nil {
			return err
		}
	}
	for _, p := range f.Priorities {
		if _, err := domain.ParseTaskPriority(string(p)); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether the given task satisfies the filter. It is the
// reference predicate implementation used by the in-memory store; the
// postgres store compiles the same semantics to SQL.
func (f TaskFilter) Matches(task *domain.Task) bool {
	if f.TitleContains != "" && !containsFold(task.Title, f.TitleContains) {
		return false
	}

	if f.TitleEquals != "" && task.Title != f.TitleEquals {
		return false
	}

	if len(f.Statuses) > 0 && !statusIn(task.Status, f.Statuses) {
		return false
	}

	if len(f.Priorities) > 0 && !priorityIn(task.Priority, f.Priorities) {
		return false
	}

	if f.IsRecurring != nil && task.IsRecurring != *f.IsRecurring {
		return false
	}

	if f.HasDependencies != nil && task.HasDependencies() != *f.HasDependencies {
		return false
	}

	if f.CronCreated != nil && task.CronCreated != *f.CronCreated {
		return false
	}

	if f.DueOn != nil {
		if task.DueDate == nil {
			return false
		}
		if !sameUTCDay(*task.DueDate, *f.DueOn) {
			return false
		}
	}

	return true
}

func statusIn(status domain.TaskStatus, set []domain.TaskStatus) bool {
	for _, s := range set {
		if status == s {
			return true
		}
	}
	return false
}

func priorityIn(priority domain.TaskPriority, set []domain.TaskPriority) bool {
	for _, p := range set {
		if priority == p {
			return true
		}
	}
	return false
}

// sameUTCDay reports whether a and b fall on the same UTC calendar day.
func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// containsFold mirrors SQL ILIKE '%substr%' semantics for title search.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
