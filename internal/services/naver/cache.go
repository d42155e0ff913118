package naver

import (
	"sync"
	"time"

	"github.com/ternarybob/replydesk/internal/models"
)

// ReviewCacheKey scopes a cached scrape to one user, business and load size
type ReviewCacheKey struct {
	UserID    string
	PlaceID   string
	LoadCount int
}

type reviewEntry struct {
	reviews  []models.Review
	total    int
	storedAt time.Time
}

// ReviewCache keeps recent scrapes in memory. Entries older than the TTL
// are never served.
type ReviewCache struct {
	mu      sync.RWMutex
	entries map[ReviewCacheKey]*reviewEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewReviewCache creates an empty review cache
func NewReviewCache(ttl time.Duration) *ReviewCache {
	return &ReviewCache{
		entries: make(map[ReviewCacheKey]*reviewEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *ReviewCache) fresh(e *reviewEntry) bool {
	return c.now().Sub(e.storedAt) < c.ttl
}

// Lookup returns a fresh cached list for the business that satisfies the
// request: one holding at least requested reviews, or one that already holds
// every review the platform reports. Short or empty entries are never served,
// even under the exact key.
func (c *ReviewCache) Lookup(userID, placeID string, requested int) ([]models.Review, int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *reviewEntry
	for key, e := range c.entries {
		if key.UserID != userID || key.PlaceID != placeID || !c.fresh(e) || !e.satisfies(requested) {
			continue
		}
		if best == nil || len(e.reviews) > len(best.reviews) {
			best = e
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return copyReviews(best.reviews), best.total, true
}

func (e *reviewEntry) satisfies(requested int) bool {
	n := len(e.reviews)
	return n > 0 && (n >= requested || n >= e.total)
}

// Existing returns the deduplicated union of every fresh entry for the
// business, used to seed an expanded load
func (c *ReviewCache) Existing(userID, placeID string) []models.Review {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var union []models.Review
	for key, e := range c.entries {
		if key.UserID == userID && key.PlaceID == placeID && c.fresh(e) {
			union = MergeReviews(union, e.reviews)
		}
	}
	return union
}

// Put stores a scrape result, replacing any entry under the same key
func (c *ReviewCache) Put(key ReviewCacheKey, reviews []models.Review, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &reviewEntry{
		reviews:  copyReviews(reviews),
		total:    total,
		storedAt: c.now(),
	}
}

// MarkReplied records a posted reply on every cached copy of the review
// with reviewID. When no cached record carries that id, fallback is used
// only if it selects exactly one distinct review. It returns the number of
// records updated.
func (c *ReviewCache) MarkReplied(userID, placeID, reviewID string, fallback func(models.Review) bool, reply, replyDate string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := reviewID
	if !c.containsLocked(userID, placeID, func(r models.Review) bool { return r.ReviewID == reviewID }) {
		target = c.soleMatchLocked(userID, placeID, fallback)
		if target == "" {
			return 0
		}
	}

	updated := 0
	for key, e := range c.entries {
		if key.UserID != userID || key.PlaceID != placeID {
			continue
		}
		for i := range e.reviews {
			if e.reviews[i].ReviewID == target {
				e.reviews[i].HasReply = true
				e.reviews[i].Reply = reply
				e.reviews[i].ReplyDate = replyDate
				updated++
			}
		}
	}
	return updated
}

func (c *ReviewCache) containsLocked(userID, placeID string, match func(models.Review) bool) bool {
	for key, e := range c.entries {
		if key.UserID != userID || key.PlaceID != placeID {
			continue
		}
		for _, r := range e.reviews {
			if match(r) {
				return true
			}
		}
	}
	return false
}

// soleMatchLocked returns the id of the only distinct review fallback
// selects, or "" when none or several match
func (c *ReviewCache) soleMatchLocked(userID, placeID string, fallback func(models.Review) bool) string {
	if fallback == nil {
		return ""
	}
	found := ""
	for key, e := range c.entries {
		if key.UserID != userID || key.PlaceID != placeID {
			continue
		}
		for _, r := range e.reviews {
			if !fallback(r) || r.ReviewID == found {
				continue
			}
			if found != "" {
				return ""
			}
			found = r.ReviewID
		}
	}
	return found
}

// InvalidateUser drops every entry belonging to the user
func (c *ReviewCache) InvalidateUser(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if key.UserID == userID {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Prune drops expired entries
func (c *ReviewCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if !c.fresh(e) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func copyReviews(in []models.Review) []models.Review {
	if in == nil {
		return nil
	}
	out := make([]models.Review, len(in))
	copy(out, in)
	return out
}

type placeEntry struct {
	places   []models.Place
	storedAt time.Time
}

// PlaceCache keeps each user's business list for a short TTL
type PlaceCache struct {
	mu      sync.RWMutex
	entries map[string]placeEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewPlaceCache creates an empty place cache
func NewPlaceCache(ttl time.Duration) *PlaceCache {
	return &PlaceCache{
		entries: make(map[string]placeEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the user's cached places while fresh
func (c *PlaceCache) Get(userID string) ([]models.Place, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[userID]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	out := make([]models.Place, len(e.places))
	copy(out, e.places)
	return out, true
}

// Put stores the user's places
func (c *PlaceCache) Put(userID string, places []models.Place) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]models.Place, len(places))
	copy(stored, places)
	c.entries[userID] = placeEntry{places: stored, storedAt: c.now()}
}

// Invalidate drops the user's entry
func (c *PlaceCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
