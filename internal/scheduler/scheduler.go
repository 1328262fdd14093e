// Package scheduler materializes occurrences of recurring tasks. Each tick it
// scans recurring templates whose due date has arrived, computes the next due
// date from the template's recurrence pattern, and creates the occurrence
// unless one with the same title and due day already exists.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tasktrail/tasktrail-api/internal/domain"
	"github.com/tasktrail/tasktrail-api/internal/store"
)

// TickStats summarizes one scheduler pass.
type TickStats struct {
	Examined int
	Created  int
	Skipped  int
	Failed   int
}

// Scheduler periodically materializes recurring-task occurrences.
type Scheduler struct {
	taskStore store.TaskStore
	clock     Clock
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler. The interval controls how often a tick runs.
func New(
	taskStore store.TaskStore,
	clock Clock,
	interval time.Duration,
	logger *slog.Logger,
) (*Scheduler, error) {
	if taskStore == nil {
		return nil, fmt.Errorf("taskStore cannot be nil")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock cannot be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Scheduler{
		taskStore: taskStore,
		clock:     clock,
		interval:  interval,
		logger:    logger.With(slog.String("component", "scheduler")),
	}, nil
}

// Start launches the tick loop in a background goroutine. Ticks run
// sequentially on that goroutine, so two passes can never overlap; a pass
// that outlasts the interval simply delays the next one.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.RunTick(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunTick(ctx)
			}
		}
	}()

	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
}

// Stop cancels the tick loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("scheduler stopped")
}

// RunTick performs one materialization pass. A failure on one template is
// logged and counted but does not stop the pass.
func (s *Scheduler) RunTick(ctx context.Context) TickStats {
	var stats TickStats

	recurring := true
	templates, err := s.taskStore.List(ctx, store.TaskFilter{IsRecurring: &recurring}, 0, 0)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list recurring tasks",
			slog.String("error", err.Error()))
		return stats
	}

	now := s.clock.Now()
	for _, template := range templates {
		stats.Examined++

		created, err := s.materialize(ctx, template, now)
		switch {
		case err != nil:
			stats.Failed++
			s.logger.ErrorContext(ctx, "failed to materialize occurrence",
				slog.String("template_id", template.ID.String()),
				slog.String("title", template.Title),
				slog.String("error", err.Error()))
		case created:
			stats.Created++
		default:
			stats.Skipped++
		}
	}

	if stats.Created > 0 || stats.Failed > 0 {
		s.logger.InfoContext(ctx, "scheduler tick finished",
			slog.Int("examined", stats.Examined),
			slog.Int("created", stats.Created),
			slog.Int("skipped", stats.Skipped),
			slog.Int("failed", stats.Failed))
	}

	return stats
}

// materialize creates the next occurrence of one recurring template. It
// reports whether a new task was created; (false, nil) means the template was
// skipped because it is not yet due or the occurrence already exists.
func (s *Scheduler) materialize(ctx context.Context, template *domain.Task, now time.Time) (bool, error) {
	if template.DueDate == nil {
		// Domain validation forbids this; tolerate drifted data.
		s.logger.WarnContext(ctx, "recurring task has no due date, skipping",
			slog.String("template_id", template.ID.String()))
		return false, nil
	}

	// Due-ness is a calendar-day question, not an instant one: a template due
	// later today must still materialize on the morning tick.
	if startOfUTCDay(*template.DueDate).After(startOfUTCDay(now)) {
		return false, nil
	}

	if _, err := domain.ParseRecurrencePattern(string(template.RecurrencePattern)); err != nil {
		s.logger.WarnContext(ctx, "unknown recurrence pattern, using daily cadence",
			slog.String("template_id", template.ID.String()),
			slog.String("pattern", string(template.RecurrencePattern)))
	}

	nextDue := domain.NextDueDate(*template.DueDate, template.RecurrencePattern)

	_, err := s.taskStore.FindOne(ctx, store.TaskFilter{
		TitleEquals: template.Title,
		DueOn:       &nextDue,
	})
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("duplicate check failed: %w", err)
	}

	occurrence, err := newOccurrence(template, nextDue)
	if err != nil {
		return false, fmt.Errorf("building occurrence: %w", err)
	}

	if err := s.taskStore.Create(ctx, occurrence); err != nil {
		return false, fmt.Errorf("creating occurrence: %w", err)
	}

	s.logger.InfoContext(ctx, "created recurring occurrence",
		slog.String("template_id", template.ID.String()),
		slog.String("occurrence_id", occurrence.ID.String()),
		slog.Time("due_date", nextDue))

	return true, nil
}

// startOfUTCDay truncates t to midnight of its UTC calendar day.
func startOfUTCDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// newOccurrence builds the next occurrence of a template. The occurrence
// inherits the template's attributes, stays recurring so it becomes the next
// template in the chain, and is flagged as scheduler-created.
func newOccurrence(template *domain.Task, dueDate time.Time) (*domain.Task, error) {
	task, err := domain.NewTask(
		template.Title,
		template.Priority,
		&dueDate,
		append([]uuid.UUID(nil), template.Dependencies...),
	)
	if err != nil {
		return nil, err
	}

	task.IsRecurring = true
	task.RecurrencePattern = template.RecurrencePattern
	task.CronCreated = true

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}
