package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
)

// TaskHandler exposes background task documents for polling
type TaskHandler struct {
	tasks   TaskQueue
	service ReviewService
	logger  arbor.ILogger
}

// NewTaskHandler creates a TaskHandler
func NewTaskHandler(queue TaskQueue, service ReviewService, logger arbor.ILogger) *TaskHandler {
	return &TaskHandler{
		tasks:   queue,
		service: service,
		logger:  logger,
	}
}

// GetTaskHandler handles GET /api/tasks/{task_id}
func (h *TaskHandler) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	taskID := PathParam(r, "/api/tasks/")
	if taskID == "" {
		WriteError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	task, err := h.tasks.Get(r.Context(), taskID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if err := h.service.Authorize(r.Context(), task.UserID, r.Header.Get(EmailHeader)); err != nil {
		h.logger.Warn().Err(err).Str("task_id", taskID).Msg("Task read not authorized")
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, task)
}
