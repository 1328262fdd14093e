package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tasktrail/tasktrail-api/internal/api/shared"
	"github.com/tasktrail/tasktrail-api/internal/domain"
	"github.com/tasktrail/tasktrail-api/internal/service"
	"github.com/tasktrail/tasktrail-api/internal/store"
)

// CreateTaskRequest is the request body for creating a task.
type CreateTaskRequest struct {
	Title             string     `json:"title"              validate:"required,min=1"`
	Priority          string     `json:"priority"           validate:"required,oneof=low medium high"`
	DueDate           *time.Time `json:"due_date"`
	IsRecurring       bool       `json:"is_recurring"`
	RecurrencePattern string     `json:"recurrence_pattern" validate:"omitempty,oneof=daily weekly monthly"`
	Dependencies      []string   `json:"dependencies"       validate:"omitempty,dive,uuid"`
}

// UpdateTaskRequest is the request body for a partial task update. There is
// deliberately no status field; combined with strict JSON decoding, a request
// carrying "status" is rejected before it reaches the service.
type UpdateTaskRequest struct {
	Title             *string    `json:"title"              validate:"omitempty,min=1"`
	Priority          *string    `json:"priority"           validate:"omitempty,oneof=low medium high"`
	DueDate           *time.Time `json:"due_date"`
	ClearDueDate      bool       `json:"clear_due_date"`
	IsRecurring       *bool      `json:"is_recurring"`
	RecurrencePattern *string    `json:"recurrence_pattern" validate:"omitempty,oneof=daily weekly monthly"`
	Dependencies      *[]string  `json:"dependencies"       validate:"omitempty,dive,uuid"`
}

// UpdateStatusRequest is the request body for a status transition.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=not_done done"`
}

// TaskResponse is the task representation returned to clients. IsDependency
// is derived from the dependency list.
type TaskResponse struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Status            string     `json:"status"`
	Priority          string     `json:"priority"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	IsRecurring       bool       `json:"is_recurring"`
	RecurrencePattern string     `json:"recurrence_pattern,omitempty"`
	IsDependency      bool       `json:"is_dependency"`
	Dependencies      []string   `json:"dependencies"`
	CronCreated       bool       `json:"cron_created"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TaskDetailResponse is a TaskResponse whose dependency references are
// resolved into full task objects. References to deleted tasks are omitted.
type TaskDetailResponse struct {
	TaskResponse
	ResolvedDependencies []TaskResponse `json:"resolved_dependencies"`
}

// BlockedResponse is returned when a completion attempt is rejected because
// of incomplete dependencies.
type BlockedResponse struct {
	Error    string                       `json:"error"`
	Blocking []service.BlockingDependency `json:"blocking_dependencies"`
	TraceID  string                       `json:"trace_id,omitempty"`
}

// SearchResponse is one page of search results plus aggregate statistics
// computed over the whole filtered set.
type SearchResponse struct {
	Tasks      []TaskDetailResponse `json:"tasks"`
	Stats      store.StatusCounts   `json:"stats"`
	Pagination service.Pagination   `json:"pagination"`
}

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	taskService service.TaskService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// RegisterRoutes mounts the task routes on the given router.
func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", h.CreateTask)
		r.Get("/", h.ListTasks)
		r.Get("/search", h.SearchTasks)
		r.Get("/incomplete", h.ListIncompleteTasks)
		r.Patch("/status/{id}", h.UpdateTaskStatus)
		r.Get("/{id}", h.GetTask)
		r.Patch("/{id}", h.UpdateTask)
		r.Delete("/{id}", h.DeleteTask)
	})
}

// CreateTask handles POST /api/tasks requests.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	deps, err := parseUUIDs(req.Dependencies)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid dependency ID")
		return
	}

	task, err := h.taskService.CreateTask(r.Context(), service.CreateTaskInput{
		Title:             req.Title,
		Priority:          domain.TaskPriority(req.Priority),
		DueDate:           req.DueDate,
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: domain.RecurrencePattern(req.RecurrencePattern),
		Dependencies:      deps,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}

// GetTask handles GET /api/tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskIDFromURL(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskDetailToResponse(task))
}

// ListTasks handles GET /api/tasks requests.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.taskService.ListTasks(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]TaskDetailResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, taskDetailToResponse(task))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// ListIncompleteTasks handles GET /api/tasks/incomplete requests.
func (h *TaskHandler) ListIncompleteTasks(w http.ResponseWriter, r *http.Request) {
	refs, err := h.taskService.ListIncompleteTasks(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, refs)
}

// SearchTasks handles GET /api/tasks/search requests.
func (h *TaskHandler) SearchTasks(w http.ResponseWriter, r *http.Request) {
	params, err := parseSearchParams(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid search parameter: "+err.Error())
		return
	}

	result, err := h.taskService.SearchTasks(r.Context(), params)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	tasks := make([]TaskDetailResponse, 0, len(result.Tasks))
	for _, task := range result.Tasks {
		tasks = append(tasks, taskDetailToResponse(task))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, SearchResponse{
		Tasks:      tasks,
		Stats:      result.Stats,
		Pagination: result.Pagination,
	})
}

// UpdateTask handles PATCH /api/tasks/{id} requests.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskIDFromURL(w, r)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		if strings.Contains(err.Error(), `"status"`) {
			shared.RespondWithError(w, r, http.StatusBadRequest,
				GetSafeErrorMessage(service.ErrStatusNotUpdatable))
			return
		}
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	input := service.UpdateTaskInput{
		DueDate:      req.DueDate,
		ClearDueDate: req.ClearDueDate,
		IsRecurring:  req.IsRecurring,
	}
	input.Title = req.Title
	if req.Priority != nil {
		priority := domain.TaskPriority(*req.Priority)
		input.Priority = &priority
	}
	if req.RecurrencePattern != nil {
		pattern := domain.RecurrencePattern(*req.RecurrencePattern)
		input.RecurrencePattern = &pattern
	}
	if req.Dependencies != nil {
		deps, err := parseUUIDs(*req.Dependencies)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid dependency ID")
			return
		}
		input.Dependencies = &deps
	}

	task, err := h.taskService.UpdateTaskFields(r.Context(), id, input)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// UpdateTaskStatus handles PATCH /api/tasks/status/{id} requests. Marking a
// task done is rejected with 409 and the list of blocking dependencies while
// any dependency is incomplete.
func (h *TaskHandler) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskIDFromURL(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.taskService.SetTaskStatus(r.Context(), id, domain.TaskStatus(req.Status))
	if err != nil {
		var blocked *service.DependencyBlockedError
		if errors.As(err, &blocked) {
			shared.RespondWithJSON(w, r, http.StatusConflict, BlockedResponse{
				Error:    GetSafeErrorMessage(err),
				Blocking: blocked.Blocking,
				TraceID:  shared.GetTraceID(r.Context()),
			})
			return
		}
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// DeleteTask handles DELETE /api/tasks/{id} requests.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskIDFromURL(w, r)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(r.Context(), id); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// taskIDFromURL parses the {id} URL parameter, responding with 400 on failure.
func (h *TaskHandler) taskIDFromURL(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return uuid.Nil, false
	}
	return id, true
}

// parseSearchParams builds search parameters from the request query string.
func parseSearchParams(r *http.Request) (service.SearchParams, error) {
	q := r.URL.Query()
	params := service.SearchParams{
		Filter: store.TaskFilter{TitleContains: q.Get("title")},
	}

	for _, raw := range splitCSV(q.Get("status")) {
		status, err := domain.ParseTaskStatus(raw)
		if err != nil {
			return params, err
		}
		params.Filter.Statuses = append(params.Filter.Statuses, status)
	}

	for _, raw := range splitCSV(q.Get("priority")) {
		priority, err := domain.ParseTaskPriority(raw)
		if err != nil {
			return params, err
		}
		params.Filter.Priorities = append(params.Filter.Priorities, priority)
	}

	var err error
	if params.Filter.IsRecurring, err = parseBoolParam(q.Get("is_recurring")); err != nil {
		return params, err
	}
	if params.Filter.HasDependencies, err = parseBoolParam(q.Get("is_dependency")); err != nil {
		return params, err
	}
	if params.Filter.CronCreated, err = parseBoolParam(q.Get("cron_created")); err != nil {
		return params, err
	}

	if raw := q.Get("page"); raw != "" {
		if params.Page, err = strconv.Atoi(raw); err != nil {
			return params, err
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if params.PageSize, err = strconv.Atoi(raw); err != nil {
			return params, err
		}
	}

	return params, nil
}

func parseBoolParam(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// taskToResponse converts a domain.Task to its client representation.
func taskToResponse(task *domain.Task) TaskResponse {
	deps := make([]string, 0, len(task.Dependencies))
	for _, dep := range task.Dependencies {
		deps = append(deps, dep.String())
	}

	return TaskResponse{
		ID:                task.ID.String(),
		Title:             task.Title,
		Status:            string(task.Status),
		Priority:          string(task.Priority),
		DueDate:           task.DueDate,
		IsRecurring:       task.IsRecurring,
		RecurrencePattern: string(task.RecurrencePattern),
		IsDependency:      task.HasDependencies(),
		Dependencies:      deps,
		CronCreated:       task.CronCreated,
		CreatedAt:         task.CreatedAt,
		UpdatedAt:         task.UpdatedAt,
	}
}

func taskDetailToResponse(task *store.TaskWithDependencies) TaskDetailResponse {
	resolved := make([]TaskResponse, 0, len(task.Dependencies))
	for _, dep := range task.Dependencies {
		resolved = append(resolved, taskToResponse(dep))
	}

	return TaskDetailResponse{
		TaskResponse:         taskToResponse(task.Task),
		ResolvedDependencies: resolved,
	}
}
