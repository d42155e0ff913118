package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/replydesk/internal/models"
)

func TestProgressSocketStreamsUntilTerminal(t *testing.T) {
	var calls int32
	svc := &fakeService{progressFn: func() models.Progress {
		n := atomic.AddInt32(&calls, 1)
		switch {
		case n == 1:
			return models.Progress{Status: models.ProgressIdle, Message: "대기 중"}
		case n < 4:
			return models.Progress{Status: models.ProgressLoading, Count: int(n) * 10, Message: "📈 로드 중", UpdatedAt: time.Now()}
		}
		return models.Progress{Status: models.ProgressCompleted, Count: 40, Message: "✅ 40개 리뷰 로드 완료!", UpdatedAt: time.Now()}
	}}
	handler := NewProgressSocketHandler(svc, 10*time.Millisecond, arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?place_id=1234&user_id=shop"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var statuses []string
	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload models.Progress `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "stream ends with a normal close: %v", err)
			break
		}
		assert.Equal(t, "progress", msg.Type)
		statuses = append(statuses, string(msg.Payload.Status))
	}

	assert.Equal(t, []string{"idle", "loading", "loading", "completed"}, statuses)
}

func TestProgressSocketRequiresPlace(t *testing.T) {
	handler := NewProgressSocketHandler(&fakeService{}, time.Second, arbor.NewLogger())
	rec := httptest.NewRecorder()
	handler.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws/progress", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
