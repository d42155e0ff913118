package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/replydesk/internal/common"
	"github.com/ternarybob/replydesk/internal/services/browser"
)

// PoolStatter reports pooled browsers
type PoolStatter interface {
	Stats() browser.PoolStats
}

type APIHandler struct {
	pool    PoolStatter
	started time.Time
	logger  arbor.ILogger
}

func NewAPIHandler(pool PoolStatter, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		pool:    pool,
		started: time.Now(),
		logger:  logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler returns health check status with pooled browser counts
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	resp := map[string]interface{}{
		"status":     "ok",
		"uptime":     time.Since(h.started).Round(time.Second).String(),
		"goroutines": common.GetGoroutineCount(),
	}
	if h.pool != nil {
		resp["browsers"] = h.pool.Stats()
	}
	WriteJSON(w, http.StatusOK, resp)
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
