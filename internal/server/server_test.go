package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/replydesk/internal/app"
	"github.com/ternarybob/replydesk/internal/common"
	"github.com/ternarybob/replydesk/internal/handlers"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := arbor.NewLogger()
	application := &app.App{
		Config:         common.NewDefaultConfig(),
		Logger:         logger,
		APIHandler:     handlers.NewAPIHandler(nil, logger),
		NaverHandler:   handlers.NewNaverHandler(nil, nil, nil, logger),
		SessionHandler: handlers.NewSessionHandler(nil, logger),
		TaskHandler:    handlers.NewTaskHandler(nil, nil, logger),
		ProgressSocket: handlers.NewProgressSocketHandler(nil, time.Second, logger),
	}
	return New(application)
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthAssignsRequestID(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestServer_ReusesIncomingRequestID(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	req.Header.Set(RequestIDHeader, "abc-123")

	rec := serve(s, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestServer_Preflight(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodOptions, "/api/reviews/load-async", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), handlers.EmailHeader)
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), handlers.ReloginHeader)
}

func TestServer_UnknownAPIRoute(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ReviewRouteRejectsPost(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/reviews/12345", nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestServer_RecoversFromPanic(t *testing.T) {
	s := newTestServer(t)
	h := s.withMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/anything", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}
