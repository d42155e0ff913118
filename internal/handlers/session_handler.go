package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/replydesk/internal/models"
)

// SessionService manages uploaded cookie sessions
type SessionService interface {
	SaveSession(ctx context.Context, upload models.SessionUpload) (*models.SessionStatus, error)
	SessionStatus(ctx context.Context, userID string) (*models.SessionStatus, error)
	Logout(ctx context.Context, userID string) (bool, error)
	Authorize(ctx context.Context, userID, email string) error
}

// SessionHandler handles cookie upload, status and logout
type SessionHandler struct {
	service SessionService
	logger  arbor.ILogger
}

// NewSessionHandler creates a SessionHandler
func NewSessionHandler(service SessionService, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger,
	}
}

// UploadHandler handles POST /api/session/upload
func (h *SessionHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var upload models.SessionUpload
	if err := DecodeJSON(r, &upload); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if upload.UserID == "" {
		upload.UserID = DefaultUserID
	}
	if upload.GoogleEmail == "" {
		upload.GoogleEmail = r.Header.Get(EmailHeader)
	}
	if err := Validate(upload); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.service.SaveSession(r.Context(), upload)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", upload.UserID).Msg("Failed to save session")
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "세션이 저장되었습니다",
		"session": status,
	})
}

// StatusHandler handles GET /api/session/status
func (h *SessionHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	userID := UserID(r)

	status, err := h.service.SessionStatus(r.Context(), userID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if status.Authenticated {
		if err := h.service.Authorize(r.Context(), userID, r.Header.Get(EmailHeader)); err != nil {
			WriteServiceError(w, err)
			return
		}
	}
	if status.Expired {
		w.Header().Set(ReloginHeader, "true")
	}
	WriteJSON(w, http.StatusOK, status)
}

// LogoutHandler handles POST /api/logout
func (h *SessionHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	userID := UserID(r)
	if err := h.service.Authorize(r.Context(), userID, r.Header.Get(EmailHeader)); err != nil && !isMissingSession(err) {
		WriteServiceError(w, err)
		return
	}

	deleted, err := h.service.Logout(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Logout failed")
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": deleted,
		"message": "로그아웃되었습니다",
	})
}

func isMissingSession(err error) bool {
	return StatusFor(err) == http.StatusUnauthorized
}
