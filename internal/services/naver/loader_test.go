package naver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/replydesk/internal/models"
)

const testPlaceBase = "https://new.smartplace.naver.com/bizes/place"

func newTestLoader(page *fakePage) (*Loader, *fakeBrowsers) {
	browsers := &fakeBrowsers{page: page}
	loader := NewLoader(browsers, NewReviewCache(time.Hour), NewTracker(time.Minute), DefaultSelectors, LoaderConfig{
		PlaceBaseURL:  testPlaceBase,
		BufferFactor:  1.8,
		SkipSampling:  true,
		NoChangeLimit: 3,
		RenderChecks:  1,
	}, testLogger())
	loader.wait = noWait
	return loader, browsers
}

func anonymousReviews(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = reviewHTML("익명", "2024. 2. 1(목)", fmt.Sprintf("익명 후기 %d", i), "")
	}
	return items
}

func TestLoadReportsShortage(t *testing.T) {
	items := append(visitorReviews(0, 40), anonymousReviews(5)...)
	page := newFakePage(items, 10)
	page.body = "방문자 리뷰 전체 40"
	loader, browsers := newTestLoader(page)

	result, err := loader.Load(context.Background(), "user", "1234", 50, LoadOptions{})
	require.NoError(t, err)

	assert.Len(t, result.Reviews, 40, "only valid reviews are returned, without padding")
	assert.Equal(t, 50, result.Requested)
	assert.Equal(t, 10, result.Shortage)
	assert.Equal(t, 40, result.Total)
	assert.False(t, result.Cached)
	for _, r := range result.Reviews {
		assert.NotEqual(t, "익명", r.Author)
		assert.True(t, strings.HasPrefix(r.ReviewID, "naver-1234-"))
	}

	progress := loader.progress.Get("user", "1234")
	assert.Equal(t, models.ProgressCompleted, progress.Status)
	assert.Equal(t, "✅ 40개 리뷰 로드 완료!", progress.Message)
	assert.Equal(t, 1, browsers.released)
}

func TestLoadSortsNewestFirst(t *testing.T) {
	page := newFakePage(visitorReviews(0, 30), 30)
	loader, _ := newTestLoader(page)

	result, err := loader.Load(context.Background(), "user", "1234", 20, LoadOptions{})
	require.NoError(t, err)

	for i := 1; i < len(result.Reviews); i++ {
		prev, ok := ParseReviewDate(result.Reviews[i-1].Date)
		require.True(t, ok)
		cur, _ := ParseReviewDate(result.Reviews[i].Date)
		assert.False(t, cur.After(prev), "review %d is newer than review %d", i, i-1)
	}
}

func TestLoadExpandsCache(t *testing.T) {
	page := newFakePage(visitorReviews(0, 80), 30)
	page.body = "방문자 리뷰 전체 150"
	loader, browsers := newTestLoader(page)

	first, err := loader.Load(context.Background(), "user", "1234", 50, LoadOptions{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(first.Reviews), 50)

	// Older reviews scrolled out of the list between the two loads
	page.items = visitorReviews(30, 120)

	second, err := loader.Load(context.Background(), "user", "1234", 200, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, browsers.opened)

	ids := make(map[string]struct{}, len(second.Reviews))
	for _, r := range second.Reviews {
		_, dup := ids[r.ReviewID]
		assert.False(t, dup, "duplicate review %s", r.ReviewID)
		ids[r.ReviewID] = struct{}{}
	}
	for _, r := range first.Reviews {
		assert.Contains(t, ids, r.ReviewID, "first load's review missing from expanded cache")
	}
	assert.Len(t, second.Reviews, 150)

	cached, _, ok := loader.cache.Lookup("user", "1234", 200)
	require.True(t, ok)
	assert.Len(t, cached, 150)
}

func TestLoadServesCache(t *testing.T) {
	page := newFakePage(visitorReviews(0, 80), 30)
	loader, browsers := newTestLoader(page)

	_, err := loader.Load(context.Background(), "user", "1234", 50, LoadOptions{})
	require.NoError(t, err)

	var published []models.Progress
	result, err := loader.Load(context.Background(), "user", "1234", 50, LoadOptions{
		OnProgress: func(p models.Progress) { published = append(published, p) },
	})
	require.NoError(t, err)

	assert.True(t, result.Cached)
	assert.Equal(t, 1, browsers.opened, "cache hits never open a browser")
	require.Len(t, published, 1)
	assert.Equal(t, models.ProgressCompleted, published[0].Status)
	assert.Contains(t, published[0].Message, "캐시에서 로드 완료")
}

func TestLoadKeepsScrollingWhenEstimateUndershoots(t *testing.T) {
	items := append(visitorReviews(0, 15), anonymousReviews(45)...)
	items = append(items, visitorReviews(100, 60)...)
	page := newFakePage(items, 30)
	loader, _ := newTestLoader(page)

	result, err := loader.Load(context.Background(), "user", "1234", 50, LoadOptions{})
	require.NoError(t, err)

	assert.Len(t, result.Reviews, 75)
	assert.Zero(t, result.Shortage)
}

func TestLoadMirrorsProgress(t *testing.T) {
	page := newFakePage(visitorReviews(0, 40), 10)
	loader, _ := newTestLoader(page)

	var messages []string
	_, err := loader.Load(context.Background(), "user", "1234", 30, LoadOptions{
		OnProgress: func(p models.Progress) { messages = append(messages, p.Message) },
	})
	require.NoError(t, err)

	require.NotEmpty(t, messages)
	assert.Equal(t, "🚀 브라우저 시작 중...", messages[0])
	assert.Contains(t, strings.Join(messages, "\n"), "📈 20개 리뷰 로드됨...")
	assert.True(t, strings.HasPrefix(messages[len(messages)-1], "✅"))
}

func TestLoadSessionExpired(t *testing.T) {
	page := newFakePage(visitorReviews(0, 10), 10)
	page.redirect = true
	loader, browsers := newTestLoader(page)

	_, err := loader.Load(context.Background(), "user", "1234", 50, LoadOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSessionExpired))

	progress := loader.progress.Get("user", "1234")
	assert.Equal(t, models.ProgressError, progress.Status)
	assert.True(t, strings.HasPrefix(progress.Message, "❌ 오류: "))
	assert.Equal(t, 1, browsers.released)
}

func TestLoadWithoutSession(t *testing.T) {
	loader, browsers := newTestLoader(newFakePage(nil, 10))
	browsers.err = models.ErrNotAuthenticated

	_, err := loader.Load(context.Background(), "user", "1234", 50, LoadOptions{})
	assert.True(t, errors.Is(err, models.ErrNotAuthenticated))
}

func TestLoadContentNotFound(t *testing.T) {
	loader, _ := newTestLoader(newFakePage(nil, 10))

	_, err := loader.Load(context.Background(), "user", "1234", 50, LoadOptions{})
	assert.True(t, errors.Is(err, models.ErrContentNotFound), "an unrendered list is never an empty success")
}

func TestLoadEmptyBusiness(t *testing.T) {
	page := newFakePage(nil, 10)
	page.body = "방문자 리뷰 전체 0"
	loader, _ := newTestLoader(page)

	result, err := loader.Load(context.Background(), "user", "1234", 50, LoadOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Reviews)
	assert.NotNil(t, result.Reviews)
}

func TestMaxScrolls(t *testing.T) {
	assert.Equal(t, 50, MaxScrolls(50))
	assert.Equal(t, 100, MaxScrolls(51))
	assert.Equal(t, 150, MaxScrolls(300))
	assert.Equal(t, 250, MaxScrolls(500))
	assert.Equal(t, 400, MaxScrolls(1000))
	assert.Equal(t, 800, MaxScrolls(1001))
}

func TestReviewsURL(t *testing.T) {
	assert.Equal(t, "https://new.smartplace.naver.com/bizes/place/1234/reviews?menu=visitor", ReviewsURL(testPlaceBase+"/", "1234"))
}
