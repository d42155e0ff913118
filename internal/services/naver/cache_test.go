package naver

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/replydesk/internal/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
}

func sampleReviews(ids ...string) []models.Review {
	out := make([]models.Review, len(ids))
	for i, id := range ids {
		out[i] = models.Review{ReviewID: id, PlaceID: "1234", Author: "손님" + id, Date: "2024. 3. 1"}
	}
	return out
}

func TestReviewCacheTTLBoundary(t *testing.T) {
	clock := newClock()
	cache := NewReviewCache(10 * time.Minute)
	cache.now = clock.now

	cache.Put(ReviewCacheKey{"user", "1234", 50}, sampleReviews("a", "b"), 2)

	clock.advance(10*time.Minute - time.Second)
	reviews, total, ok := cache.Lookup("user", "1234", 50)
	require.True(t, ok, "served just before the TTL")
	assert.Len(t, reviews, 2)
	assert.Equal(t, 2, total)

	clock.advance(2 * time.Second)
	_, _, ok = cache.Lookup("user", "1234", 50)
	assert.False(t, ok, "refreshed just after the TTL")
	assert.Empty(t, cache.Existing("user", "1234"))
}

func TestReviewCacheLookupLargerEntry(t *testing.T) {
	cache := NewReviewCache(time.Hour)
	cache.Put(ReviewCacheKey{"user", "1234", 200}, sampleReviews("a", "b", "c"), 10)

	reviews, _, ok := cache.Lookup("user", "1234", 2)
	require.True(t, ok, "an entry holding more than requested satisfies the request")
	assert.Len(t, reviews, 3)

	_, _, ok = cache.Lookup("user", "1234", 5)
	assert.False(t, ok, "three of ten reviews cannot satisfy five")

	cache.Put(ReviewCacheKey{"user", "1234", 5}, sampleReviews("a", "b", "c"), 3)
	_, _, ok = cache.Lookup("user", "1234", 500)
	assert.True(t, ok, "an entry holding every review satisfies any request")

	_, _, ok = cache.Lookup("other", "1234", 2)
	assert.False(t, ok, "entries are scoped per user")
}

func TestReviewCacheExistingUnion(t *testing.T) {
	cache := NewReviewCache(time.Hour)
	cache.Put(ReviewCacheKey{"user", "1234", 50}, sampleReviews("a", "b"), 0)
	cache.Put(ReviewCacheKey{"user", "1234", 100}, sampleReviews("b", "c"), 0)
	cache.Put(ReviewCacheKey{"user", "9999", 50}, sampleReviews("z"), 0)

	union := cache.Existing("user", "1234")
	ids := make([]string, 0, len(union))
	for _, r := range union {
		ids = append(ids, r.ReviewID)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
}

func TestReviewCacheMarkReplied(t *testing.T) {
	cache := NewReviewCache(time.Hour)
	cache.Put(ReviewCacheKey{"user", "1234", 50}, sampleReviews("a", "b"), 2)
	cache.Put(ReviewCacheKey{"user", "1234", 100}, sampleReviews("a"), 1)

	n := cache.MarkReplied("user", "1234", "a", nil, "감사합니다", "2024. 03. 15")
	assert.Equal(t, 2, n)

	reviews, _, ok := cache.Lookup("user", "1234", 50)
	require.True(t, ok)
	for _, r := range reviews {
		if r.ReviewID == "a" {
			assert.True(t, r.HasReply)
			assert.Equal(t, "감사합니다", r.Reply)
			assert.Equal(t, "2024. 03. 15", r.ReplyDate)
		} else {
			assert.False(t, r.HasReply)
		}
	}
}

func TestReviewCacheMarkRepliedOnlyTheFingerprint(t *testing.T) {
	cache := NewReviewCache(time.Hour)
	target := models.Review{ReviewID: ReviewID("1234", "맛집탐방러", "2024. 3. 15(금)", "맛있어요"), Author: "맛집탐방러", Date: "2024. 3. 15(금)", Content: "맛있어요"}
	sibling := models.Review{ReviewID: ReviewID("1234", "맛집탐방가", "2024. 3. 15(금)", "친절해요"), Author: "맛집탐방가", Date: "2024. 3. 15(금)", Content: "친절해요"}
	cache.Put(ReviewCacheKey{"user", "1234", 50}, []models.Review{target, sibling}, 2)

	key := NewMatchKey("맛집탐방러", "2024. 3. 15(금)", "맛있어요")
	require.True(t, key.MatchesReview(sibling), "the loose key alone cannot tell these apart")

	n := cache.MarkReplied("user", "1234", target.ReviewID, key.MatchesReview, "감사합니다", "2024. 03. 15")
	assert.Equal(t, 1, n)

	reviews, _, _ := cache.Lookup("user", "1234", 50)
	for _, r := range reviews {
		assert.Equal(t, r.ReviewID == target.ReviewID, r.HasReply, r.Author)
	}
}

func TestReviewCacheMarkRepliedFallback(t *testing.T) {
	cache := NewReviewCache(time.Hour)
	first := models.Review{ReviewID: "x1", Author: "맛집탐방러", Date: "2024. 3. 15(금)"}
	second := models.Review{ReviewID: "x2", Author: "맛집탐방가", Date: "2024. 3. 15(금)"}
	other := models.Review{ReviewID: "x3", Author: "김민수", Date: "2024. 3. 14(목)"}
	cache.Put(ReviewCacheKey{"user", "1234", 50}, []models.Review{first, second, other}, 3)
	cache.Put(ReviewCacheKey{"user", "1234", 100}, []models.Review{other}, 1)

	ambiguous := NewMatchKey("맛집탐방러", "2024. 3. 15", "")
	assert.Equal(t, 0, cache.MarkReplied("user", "1234", "missing", ambiguous.MatchesReview, "감사합니다", "2024. 03. 15"),
		"several candidates leave the cache untouched")

	sole := NewMatchKey("김민수", "2024. 3. 14", "")
	assert.Equal(t, 2, cache.MarkReplied("user", "1234", "missing", sole.MatchesReview, "감사합니다", "2024. 03. 15"),
		"a single candidate is marked in every entry")

	reviews, _, _ := cache.Lookup("user", "1234", 50)
	for _, r := range reviews {
		assert.Equal(t, r.ReviewID == "x3", r.HasReply, r.Author)
	}
}

func TestReviewCacheShortEntryNotServed(t *testing.T) {
	cache := NewReviewCache(time.Hour)

	cache.Put(ReviewCacheKey{"user", "1234", 50}, sampleReviews(fortyIDs()...), 45)
	_, _, ok := cache.Lookup("user", "1234", 50)
	assert.False(t, ok, "40 of 45 reviews cannot satisfy 50 even under the exact key")

	cache.Put(ReviewCacheKey{"user", "1234", 60}, nil, 0)
	_, _, ok = cache.Lookup("user", "1234", 60)
	assert.False(t, ok, "an empty result is scraped again")

	cache.Put(ReviewCacheKey{"user", "1234", 70}, sampleReviews(fortyIDs()...), 40)
	reviews, _, ok := cache.Lookup("user", "1234", 70)
	require.True(t, ok, "a list holding every reported review is served")
	assert.Len(t, reviews, 40)
}

func fortyIDs() []string {
	ids := make([]string, 40)
	for i := range ids {
		ids[i] = fmt.Sprintf("r%02d", i)
	}
	return ids
}

func TestReviewCacheReturnsCopies(t *testing.T) {
	cache := NewReviewCache(time.Hour)
	cache.Put(ReviewCacheKey{"user", "1234", 50}, sampleReviews("a"), 1)

	reviews, _, _ := cache.Lookup("user", "1234", 50)
	reviews[0].Reply = "changed"

	again, _, _ := cache.Lookup("user", "1234", 50)
	assert.Empty(t, again[0].Reply)
}

func TestReviewCacheInvalidateAndPrune(t *testing.T) {
	clock := newClock()
	cache := NewReviewCache(time.Minute)
	cache.now = clock.now

	cache.Put(ReviewCacheKey{"user", "1", 50}, sampleReviews("a"), 1)
	cache.Put(ReviewCacheKey{"user", "2", 50}, sampleReviews("b"), 1)
	cache.Put(ReviewCacheKey{"other", "1", 50}, sampleReviews("c"), 1)

	assert.Equal(t, 2, cache.InvalidateUser("user"))

	clock.advance(2 * time.Minute)
	assert.Equal(t, 1, cache.Prune())
}

func TestPlaceCache(t *testing.T) {
	clock := newClock()
	cache := NewPlaceCache(5 * time.Minute)
	cache.now = clock.now

	cache.Put("user", []models.Place{{PlaceID: "1", Name: "행복식당"}})

	clock.advance(5*time.Minute - time.Second)
	places, ok := cache.Get("user")
	require.True(t, ok)
	assert.Equal(t, "행복식당", places[0].Name)

	clock.advance(2 * time.Second)
	_, ok = cache.Get("user")
	assert.False(t, ok)

	cache.Put("user", nil)
	cache.Invalidate("user")
	_, ok = cache.Get("user")
	assert.False(t, ok)
}
