package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route - progress streaming
	mux.HandleFunc("/ws/progress", s.app.ProgressSocket.HandleWebSocket)

	// API routes - Businesses
	mux.HandleFunc("/api/places", s.app.NaverHandler.PlacesHandler) // GET ?user_id=

	// API routes - Reviews
	mux.HandleFunc("/api/reviews/load-async", s.app.NaverHandler.LoadAsyncHandler)   // POST - queue review load
	mux.HandleFunc("/api/reviews/reply-async", s.app.NaverHandler.ReplyAsyncHandler) // POST - queue reply
	mux.HandleFunc("/api/reviews/reply", s.app.NaverHandler.ReplyHandler)            // POST - reply and wait
	mux.HandleFunc("/api/reviews/", s.handleReviewRoutes)                            // GET /{place_id}, /progress/{place_id}

	// API routes - Background tasks
	mux.HandleFunc("/api/tasks/", s.app.TaskHandler.GetTaskHandler) // GET /{task_id}

	// API routes - Cookie sessions
	mux.HandleFunc("/api/session/upload", s.app.SessionHandler.UploadHandler)
	mux.HandleFunc("/api/session/status", s.app.SessionHandler.StatusHandler)
	mux.HandleFunc("/api/logout", s.app.SessionHandler.LogoutHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleReviewRoutes routes /api/reviews/{place_id} and /api/reviews/progress/{place_id}
func (s *Server) handleReviewRoutes(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/reviews/progress/") {
		s.app.NaverHandler.ProgressHandler(w, r)
		return
	}
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet: s.app.NaverHandler.ReviewsHandler,
	})
}
