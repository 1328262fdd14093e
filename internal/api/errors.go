package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tasktrail/tasktrail-api/internal/domain"
	"github.com/tasktrail/tasktrail-api/internal/service"
	"github.com/tasktrail/tasktrail-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	var blocked *service.DependencyBlockedError

	switch {
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.As(err, &blocked):
		return http.StatusConflict

	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, service.ErrStatusNotUpdatable),
		isDomainValidationError(err):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for the error.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var blocked *service.DependencyBlockedError

	switch {
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Task not found"

	case errors.As(err, &blocked):
		return "Task cannot be completed while its dependencies are incomplete"

	case errors.Is(err, service.ErrStatusNotUpdatable):
		return "Status cannot be changed through this endpoint"

	case isDomainValidationError(err):
		// Domain validation messages are written for users and carry no
		// internal detail.
		return capitalizeFirst(domainValidationMessage(err))

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid task data"

	default:
		return "An unexpected error occurred"
	}
}

func isDomainValidationError(err error) bool {
	return errors.Is(err, domain.ErrEmptyTaskTitle) ||
		errors.Is(err, domain.ErrInvalidTaskStatus) ||
		errors.Is(err, domain.ErrInvalidTaskPriority) ||
		errors.Is(err, domain.ErrInvalidRecurrencePattern) ||
		errors.Is(err, domain.ErrRecurrencePatternRequired) ||
		errors.Is(err, domain.ErrRecurrenceDueDateRequired) ||
		errors.Is(err, domain.ErrEmptyDependencyID)
}

func domainValidationMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrEmptyTaskTitle,
		domain.ErrInvalidTaskStatus,
		domain.ErrInvalidTaskPriority,
		domain.ErrInvalidRecurrencePattern,
		domain.ErrRecurrencePatternRequired,
		domain.ErrRecurrenceDueDateRequired,
		domain.ErrEmptyDependencyID,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "invalid task data"
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
