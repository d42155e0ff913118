package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/replydesk/internal/handlers"
)

// MethodRouter maps HTTP methods to handlers for one path
type MethodRouter map[string]http.HandlerFunc

// RouteByMethod dispatches on r.Method and answers 405 with an Allow header otherwise
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	if handler, ok := routes[r.Method]; ok {
		handler(w, r)
		return
	}

	allowed := make([]string, 0, len(routes))
	for method := range routes {
		allowed = append(allowed, method)
	}
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
