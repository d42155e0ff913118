package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/replydesk/internal/models"
	"github.com/ternarybob/replydesk/internal/services/naver"
	"github.com/ternarybob/replydesk/internal/services/tasks"
)

// DefaultLoadCount is the synchronous load size when none is given
const DefaultLoadCount = 300

// ReviewService is the naver service surface the handlers use
type ReviewService interface {
	ListPlaces(ctx context.Context, userID string) ([]models.Place, error)
	LoadReviews(ctx context.Context, userID, placeID string, loadCount int, opts naver.LoadOptions) (*models.ReviewPage, error)
	PostReply(ctx context.Context, req models.ReplyRequest) (*models.ReplyResult, error)
	Progress(userID, placeID string) models.Progress
	Authorize(ctx context.Context, userID, email string) error
}

// Runner runs a job on the executor and waits for it
type Runner interface {
	Do(ctx context.Context, userID, name string, job tasks.Job) (interface{}, error)
}

// TaskQueue creates and reads background tasks
type TaskQueue interface {
	Create(ctx context.Context, taskType models.TaskType, userID string, params map[string]interface{}) (*models.Task, error)
	Get(ctx context.Context, id string) (*models.Task, error)
}

// NaverHandler serves places, reviews and replies
type NaverHandler struct {
	service ReviewService
	runner  Runner
	tasks   TaskQueue
	logger  arbor.ILogger
}

// NewNaverHandler creates a NaverHandler
func NewNaverHandler(service ReviewService, runner Runner, queue TaskQueue, logger arbor.ILogger) *NaverHandler {
	return &NaverHandler{
		service: service,
		runner:  runner,
		tasks:   queue,
		logger:  logger,
	}
}

// LoadRequest is the body of POST /api/reviews/load-async
type LoadRequest struct {
	PlaceID   string `json:"place_id" validate:"required,numeric"`
	LoadCount int    `json:"load_count" validate:"gte=0,lte=5000"`
	UserID    string `json:"user_id"`
}

// TaskAccepted is returned when a background task is queued
type TaskAccepted struct {
	TaskID    string `json:"task_id"`
	StatusURL string `json:"status_url"`
}

// ReviewsResponse is the body of GET /api/reviews/{place_id}
type ReviewsResponse struct {
	Reviews   []models.Review `json:"reviews"`
	Total     int             `json:"total"`
	Loaded    int             `json:"loaded"`
	Requested int             `json:"requested"`
	Shortage  int             `json:"shortage,omitempty"`
	Cached    bool            `json:"cached"`
	Page      int             `json:"page,omitempty"`
	PageSize  int             `json:"page_size,omitempty"`
}

// authorize applies the external identity gate for userID
func (h *NaverHandler) authorize(w http.ResponseWriter, r *http.Request, userID string) bool {
	if err := h.service.Authorize(r.Context(), userID, r.Header.Get(EmailHeader)); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Str("path", r.URL.Path).Msg("Request not authorized")
		WriteServiceError(w, err)
		return false
	}
	return true
}

// PlacesHandler handles GET /api/places
func (h *NaverHandler) PlacesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID := UserID(r)
	if !h.authorize(w, r, userID) {
		return
	}

	result, err := h.runner.Do(r.Context(), userID, "list_places", func(ctx context.Context) (interface{}, error) {
		return h.service.ListPlaces(ctx, userID)
	})
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list places")
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// LoadAsyncHandler handles POST /api/reviews/load-async
func (h *NaverHandler) LoadAsyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req LoadRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}
	if err := Validate(req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.authorize(w, r, req.UserID) {
		return
	}

	params := tasks.ReviewLoadParams{PlaceID: req.PlaceID, LoadCount: req.LoadCount, UserID: req.UserID}
	task, err := h.tasks.Create(r.Context(), models.TaskTypeReviewLoad, req.UserID, params.Map())
	if err != nil {
		h.logger.Error().Err(err).Str("place_id", req.PlaceID).Msg("Failed to queue review load")
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, TaskAccepted{TaskID: task.ID, StatusURL: "/api/tasks/" + task.ID})
}

// ReviewsHandler handles GET /api/reviews/{place_id}. Without a page
// parameter every loaded review is returned.
func (h *NaverHandler) ReviewsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	placeID := PathParam(r, "/api/reviews/")
	if placeID == "" {
		WriteError(w, http.StatusBadRequest, "place_id is required")
		return
	}
	if err := validate.Var(placeID, "numeric"); err != nil {
		WriteError(w, http.StatusBadRequest, "place_id must be numeric")
		return
	}
	userID := UserID(r)
	if !h.authorize(w, r, userID) {
		return
	}
	loadCount := QueryInt(r, "load_count", DefaultLoadCount)

	result, err := h.runner.Do(r.Context(), userID, "load_reviews", func(ctx context.Context) (interface{}, error) {
		return h.service.LoadReviews(ctx, userID, placeID, loadCount, naver.LoadOptions{})
	})
	if err != nil {
		h.logger.Error().Err(err).Str("place_id", placeID).Str("user_id", userID).Msg("Failed to load reviews")
		WriteServiceError(w, err)
		return
	}

	page := result.(*models.ReviewPage)
	resp := ReviewsResponse{
		Reviews:   page.Reviews,
		Total:     page.Total,
		Loaded:    len(page.Reviews),
		Requested: page.Requested,
		Shortage:  page.Shortage,
		Cached:    page.Cached,
	}
	if r.URL.Query().Get("page") != "" {
		resp.Page = QueryInt(r, "page", 1)
		resp.PageSize = QueryInt(r, "page_size", 20)
		resp.Reviews = PageOf(page.Reviews, resp.Page, resp.PageSize)
	}
	if resp.Reviews == nil {
		resp.Reviews = []models.Review{}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ProgressHandler handles GET /api/reviews/progress/{place_id}
func (h *NaverHandler) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	placeID := PathParam(r, "/api/reviews/progress/")
	if placeID == "" {
		WriteError(w, http.StatusBadRequest, "place_id is required")
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	WriteJSON(w, http.StatusOK, h.service.Progress(userID, placeID))
}

func (h *NaverHandler) decodeReply(w http.ResponseWriter, r *http.Request) (models.ReplyRequest, bool) {
	var req models.ReplyRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}
	if err := Validate(req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, h.authorize(w, r, req.UserID)
}

// ReplyAsyncHandler handles POST /api/reviews/reply-async
func (h *NaverHandler) ReplyAsyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	req, ok := h.decodeReply(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.Create(r.Context(), models.TaskTypeReplyPost, req.UserID, tasks.ReplyPostParams(req))
	if err != nil {
		h.logger.Error().Err(err).Str("place_id", req.PlaceID).Msg("Failed to queue reply")
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, TaskAccepted{TaskID: task.ID, StatusURL: "/api/tasks/" + task.ID})
}

// ReplyHandler handles POST /api/reviews/reply and waits for the result
func (h *NaverHandler) ReplyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	req, ok := h.decodeReply(w, r)
	if !ok {
		return
	}

	result, err := h.runner.Do(r.Context(), req.UserID, "post_reply", func(ctx context.Context) (interface{}, error) {
		return h.service.PostReply(ctx, req)
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("place_id", req.PlaceID).Str("user_id", req.UserID).Msg("Reply failed")
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// PageOf returns the 1-based page of items
func PageOf[T any](items []T, page, pageSize int) []T {
	if page < 1 || pageSize < 1 {
		return items
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := min(start+pageSize, len(items))
	return items[start:end]
}
