package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasktrail/tasktrail-api/internal/platform/memory"
	"github.com/tasktrail/tasktrail-api/internal/service"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	taskStore := memory.NewTaskStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.NewTaskService(taskStore, logger)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		NewTaskHandler(svc).RegisterRoutes(r)
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func createTaskViaAPI(t *testing.T, router http.Handler, body map[string]interface{}) TaskResponse {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/api/tasks", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created TaskResponse
	decodeBody(t, rec, &created)
	return created
}

func TestCreateTask(t *testing.T) {
	router := newTestRouter(t)

	t.Run("valid request", func(t *testing.T) {
		created := createTaskViaAPI(t, router, map[string]interface{}{
			"title":    "Write report",
			"priority": "high",
		})
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "not_done", created.Status)
		assert.False(t, created.IsDependency)
	})

	t.Run("missing title", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/tasks", map[string]interface{}{
			"priority": "low",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown priority", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/tasks", map[string]interface{}{
			"title":    "T",
			"priority": "urgent",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed dependency id", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/tasks", map[string]interface{}{
			"title":        "T",
			"priority":     "low",
			"dependencies": []string{"not-a-uuid"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetTask(t *testing.T) {
	router := newTestRouter(t)

	dep := createTaskViaAPI(t, router, map[string]interface{}{
		"title": "Dependency", "priority": "low",
	})
	parent := createTaskViaAPI(t, router, map[string]interface{}{
		"title": "Parent", "priority": "medium",
		"dependencies": []string{dep.ID},
	})

	rec := doJSON(t, router, http.MethodGet, "/api/tasks/"+parent.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail TaskDetailResponse
	decodeBody(t, rec, &detail)
	assert.True(t, detail.IsDependency)
	require.Len(t, detail.ResolvedDependencies, 1)
	assert.Equal(t, "Dependency", detail.ResolvedDependencies[0].Title)

	rec = doJSON(t, router, http.MethodGet, "/api/tasks/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/tasks/garbage", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTaskStatus(t *testing.T) {
	router := newTestRouter(t)

	dep := createTaskViaAPI(t, router, map[string]interface{}{
		"title": "Draft design", "priority": "medium",
	})
	review := createTaskViaAPI(t, router, map[string]interface{}{
		"title": "Review design", "priority": "medium",
		"dependencies": []string{dep.ID},
	})

	// Completing the dependent first is rejected with the blockers listed.
	rec := doJSON(t, router, http.MethodPatch, "/api/tasks/status/"+review.ID,
		map[string]interface{}{"status": "done"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var blocked BlockedResponse
	decodeBody(t, rec, &blocked)
	require.Len(t, blocked.Blocking, 1)
	assert.Equal(t, dep.ID, blocked.Blocking[0].ID.String())
	assert.Equal(t, "Draft design", blocked.Blocking[0].Title)

	// Complete the dependency, then the dependent.
	rec = doJSON(t, router, http.MethodPatch, "/api/tasks/status/"+dep.ID,
		map[string]interface{}{"status": "done"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/api/tasks/status/"+review.ID,
		map[string]interface{}{"status": "done"})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated TaskResponse
	decodeBody(t, rec, &updated)
	assert.Equal(t, "done", updated.Status)

	// Reopening is always allowed.
	rec = doJSON(t, router, http.MethodPatch, "/api/tasks/status/"+dep.ID,
		map[string]interface{}{"status": "not_done"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/api/tasks/status/"+review.ID,
		map[string]interface{}{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTask_RejectsStatusField(t *testing.T) {
	router := newTestRouter(t)

	task := createTaskViaAPI(t, router, map[string]interface{}{
		"title": "T", "priority": "low",
	})

	rec := doJSON(t, router, http.MethodPatch, "/api/tasks/"+task.ID,
		map[string]interface{}{"status": "done"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Status cannot be changed")

	// The task is untouched.
	rec = doJSON(t, router, http.MethodGet, "/api/tasks/"+task.ID, nil)
	var detail TaskDetailResponse
	decodeBody(t, rec, &detail)
	assert.Equal(t, "not_done", detail.Status)
}

func TestUpdateTask(t *testing.T) {
	router := newTestRouter(t)

	task := createTaskViaAPI(t, router, map[string]interface{}{
		"title": "Old title", "priority": "low",
	})

	rec := doJSON(t, router, http.MethodPatch, "/api/tasks/"+task.ID, map[string]interface{}{
		"title":    "New title",
		"priority": "high",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated TaskResponse
	decodeBody(t, rec, &updated)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, "high", updated.Priority)

	rec = doJSON(t, router, http.MethodPatch, "/api/tasks/"+uuid.NewString(),
		map[string]interface{}{"title": "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTask(t *testing.T) {
	router := newTestRouter(t)

	dep := createTaskViaAPI(t, router, map[string]interface{}{
		"title": "Dependency", "priority": "low",
	})
	parent := createTaskViaAPI(t, router, map[string]interface{}{
		"title": "Parent", "priority": "low",
		"dependencies": []string{dep.ID},
	})

	rec := doJSON(t, router, http.MethodDelete, "/api/tasks/"+dep.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// The reference to the deleted task is pruned.
	rec = doJSON(t, router, http.MethodGet, "/api/tasks/"+parent.ID, nil)
	var detail TaskDetailResponse
	decodeBody(t, rec, &detail)
	assert.Empty(t, detail.Dependencies)
	assert.False(t, detail.IsDependency)

	rec = doJSON(t, router, http.MethodDelete, "/api/tasks/"+dep.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListIncompleteTasks(t *testing.T) {
	router := newTestRouter(t)

	done := createTaskViaAPI(t, router, map[string]interface{}{
		"title": "Done", "priority": "low",
	})
	createTaskViaAPI(t, router, map[string]interface{}{
		"title": "Open", "priority": "low",
	})

	rec := doJSON(t, router, http.MethodPatch, "/api/tasks/status/"+done.ID,
		map[string]interface{}{"status": "done"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/tasks/incomplete", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var refs []service.TaskRef
	decodeBody(t, rec, &refs)
	require.Len(t, refs, 1)
	assert.Equal(t, "Open", refs[0].Title)
}

func TestSearchTasks(t *testing.T) {
	router := newTestRouter(t)

	for i := 0; i < 5; i++ {
		createTaskViaAPI(t, router, map[string]interface{}{
			"title": fmt.Sprintf("Release step %d", i), "priority": "high",
		})
	}
	createTaskViaAPI(t, router, map[string]interface{}{
		"title": "Water plants", "priority": "low",
	})

	t.Run("filtered page with stats over whole match set", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet,
			"/api/tasks/search?title=release&priority=high&page=2&limit=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var result SearchResponse
		decodeBody(t, rec, &result)
		assert.Len(t, result.Tasks, 2)
		assert.Equal(t, int64(5), result.Stats.Total)
		assert.Equal(t, service.Pagination{
			TotalTasks: 5, TotalPages: 3, CurrentPage: 2, PageSize: 2,
		}, result.Pagination)
	})

	t.Run("status filter with multiple values", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet,
			"/api/tasks/search?status=not_done,done", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var result SearchResponse
		decodeBody(t, rec, &result)
		assert.Equal(t, int64(6), result.Stats.Total)
	})

	t.Run("invalid status value", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/tasks/search?status=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid boolean value", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/tasks/search?is_recurring=maybe", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no matches yields zero pages", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/tasks/search?title=nonexistent", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var result SearchResponse
		decodeBody(t, rec, &result)
		assert.Empty(t, result.Tasks)
		assert.Equal(t, 0, result.Pagination.TotalPages)
	})
}
