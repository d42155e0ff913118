package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/replydesk/internal/common"
	"github.com/ternarybob/replydesk/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // UIs are served from other origins
	},
}

const writeWait = 10 * time.Second

// WSMessage is the envelope for every pushed message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ProgressSource returns the latest Progress Record for a business
type ProgressSource interface {
	Progress(userID, placeID string) models.Progress
}

// ProgressSocketHandler streams Progress Records over a websocket
type ProgressSocketHandler struct {
	source   ProgressSource
	interval time.Duration
	logger   arbor.ILogger
	now      func() time.Time
}

// NewProgressSocketHandler creates a handler pushing every interval
func NewProgressSocketHandler(source ProgressSource, interval time.Duration, logger arbor.ILogger) *ProgressSocketHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressSocketHandler{
		source:   source,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleWebSocket handles /ws/progress?place_id=&user_id=. The stream ends
// once a load started or finished after the client connected reaches a
// terminal state, or when the client goes away.
func (h *ProgressSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	placeID := r.URL.Query().Get("place_id")
	if placeID == "" {
		WriteError(w, http.StatusBadRequest, "place_id is required")
		return
	}
	userID := r.URL.Query().Get("user_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.logger.Debug().Str("place_id", placeID).Str("user_id", userID).Msg("Progress client connected")

	// Reads only detect the client closing
	gone := make(chan struct{})
	common.SafeGo(h.logger, "progressSocketReader", func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug().Err(err).Msg("Progress client read error")
				}
				return
			}
		}
	})

	connected := h.now()
	active := false
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		progress := h.source.Progress(userID, placeID)
		if progress.Status == models.ProgressLoading {
			active = true
		}

		conn.SetWriteDeadline(h.now().Add(writeWait))
		if err := conn.WriteJSON(WSMessage{Type: "progress", Payload: progress}); err != nil {
			h.logger.Debug().Err(err).Str("place_id", placeID).Msg("Progress client write failed")
			return
		}

		if progress.Status.IsTerminal() && (active || !progress.UpdatedAt.Before(connected)) {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(progress.Status)),
				h.now().Add(writeWait))
			h.logger.Debug().Str("place_id", placeID).Str("status", string(progress.Status)).Msg("Progress stream finished")
			return
		}

		select {
		case <-gone:
			h.logger.Debug().Str("place_id", placeID).Msg("Progress client disconnected")
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
