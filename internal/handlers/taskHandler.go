package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/akolanti/docsync/internal/adapter"
	"github.com/akolanti/docsync/internal/adapter/utils"
	"github.com/akolanti/docsync/internal/api"
	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/pkg/logger_i"
)

// TaskLookup reads task status records.
type TaskLookup interface {
	GetTask(ctx context.Context, taskId string) (taskModel.Task, bool)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	tasks  TaskLookup
	checks map[string]HealthCheck
	logger *logger_i.Logger
}

func NewHandler(tasks TaskLookup, checks map[string]HealthCheck) *Handler {
	return &Handler{tasks: tasks, checks: checks, logger: logger_i.NewLogger("RequestHandler")}
}

// GetStatusHandler returns the status record of one reindex task.
func (h *Handler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !h.validateContext(r.Context()) {
		return
	}
	idString := utils.GetChiURLParam(r, "id")
	if idString == "" {
		WriteErrorResponse(w, http.StatusBadRequest, idString, "Task id is required")
		return
	}

	result, isFound := h.tasks.GetTask(r.Context(), idString)
	h.logger.WithTrace(r.Context()).Debug("Get Status Request", "taskId", idString, "found", isFound)
	if !isFound {
		WriteErrorResponse(w, http.StatusNotFound, idString, "Task not found")
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToAPIResponse(result))
}

// HealthHandler runs every dependency check; any failure turns the response into a 503.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.StoreCallTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	res := api.HealthResponse{Status: "ok", Checks: map[string]string{}}
	code := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.WithTrace(r.Context()).Warn("health check failed", "dependency", name, "error", err)
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}
	writeJsonResponse(w, code, res)
}
