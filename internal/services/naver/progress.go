package naver

import (
	"sync"
	"time"

	"github.com/ternarybob/replydesk/internal/models"
)

type progressKey struct {
	userID  string
	placeID string
}

// Tracker holds the latest Progress Record per user and business. Terminal
// records fall back to idle once the retention window passes.
type Tracker struct {
	mu        sync.RWMutex
	records   map[progressKey]models.Progress
	retention time.Duration
	now       func() time.Time
}

// NewTracker creates an empty progress tracker
func NewTracker(retention time.Duration) *Tracker {
	return &Tracker{
		records:   make(map[progressKey]models.Progress),
		retention: retention,
		now:       time.Now,
	}
}

// Set publishes a new record for the user and business
func (t *Tracker) Set(userID, placeID string, status models.ProgressStatus, count int, message string) models.Progress {
	p := models.Progress{
		Status:    status,
		Count:     count,
		Message:   message,
		UpdatedAt: t.now(),
	}
	t.mu.Lock()
	t.records[progressKey{userID, placeID}] = p
	t.mu.Unlock()
	return p
}

// Get returns the record for the user and business. An empty userID
// matches the most recent record for the business from any user.
func (t *Tracker) Get(userID, placeID string) models.Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var (
		found models.Progress
		ok    bool
	)
	if userID != "" {
		found, ok = t.records[progressKey{userID, placeID}]
	} else {
		for key, p := range t.records {
			if key.placeID == placeID && (!ok || p.UpdatedAt.After(found.UpdatedAt)) {
				found, ok = p, true
			}
		}
	}
	if !ok || t.stale(found) {
		return idleProgress()
	}
	return found
}

func (t *Tracker) stale(p models.Progress) bool {
	return p.Status.IsTerminal() && t.now().Sub(p.UpdatedAt) > t.retention
}

// Prune removes terminal records past retention
func (t *Tracker) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, p := range t.records {
		if t.stale(p) {
			delete(t.records, key)
			removed++
		}
	}
	return removed
}

// ClearUser removes every record belonging to the user
func (t *Tracker) ClearUser(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.records {
		if key.userID == userID {
			delete(t.records, key)
		}
	}
}

func idleProgress() models.Progress {
	return models.Progress{Status: models.ProgressIdle, Message: "대기 중"}
}
