package naver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/replydesk/internal/models"
)

const (
	defaultLoadCount = 50
	// sampleSize items are inspected once to estimate the filtered-out ratio
	sampleSize = 15
	// minEstimateItems rendered items are needed before the estimate may stop scrolling
	minEstimateItems = 10
)

// LoaderConfig tunes the scroll-to-load strategy
type LoaderConfig struct {
	PlaceBaseURL  string
	BufferFactor  float64 // raw items targeted per requested review before sampling
	SkipSampling  bool    // estimate the share of non-review items while scrolling
	NoChangeLimit int     // unchanged scrolls before the list counts as exhausted
	ScrollDelay   time.Duration
	SettleDelay   time.Duration // after navigation, before popups are handled
	RenderPoll    time.Duration
	RenderChecks  int
}

// LoadOptions carries per-call hooks
type LoadOptions struct {
	// OnProgress receives every Progress Record the load publishes
	OnProgress func(models.Progress)
}

// Loader scrapes a business's review list, merging with cached results
type Loader struct {
	browsers Browsers
	cache    *ReviewCache
	progress *Tracker
	sel      Selectors
	config   LoaderConfig
	logger   arbor.ILogger
	wait     waitFunc
}

// NewLoader creates a review loader
func NewLoader(browsers Browsers, cache *ReviewCache, progress *Tracker, sel Selectors, config LoaderConfig, logger arbor.ILogger) *Loader {
	if config.BufferFactor < 1 {
		config.BufferFactor = 1
	}
	if config.NoChangeLimit <= 0 {
		config.NoChangeLimit = 10
	}
	if config.RenderChecks <= 0 {
		config.RenderChecks = 10
	}
	return &Loader{
		browsers: browsers,
		cache:    cache,
		progress: progress,
		sel:      sel,
		config:   config,
		logger:   logger,
		wait:     sleep,
	}
}

// MaxScrolls bounds scrolling by request size
func MaxScrolls(requested int) int {
	switch {
	case requested <= 50:
		return 50
	case requested <= 150:
		return 100
	case requested <= 300:
		return 150
	case requested <= 500:
		return 250
	case requested <= 1000:
		return 400
	default:
		return 800
	}
}

// ReviewsURL is the visitor review list for a business
func ReviewsURL(placeBaseURL, placeID string) string {
	return strings.TrimRight(placeBaseURL, "/") + "/" + placeID + "/reviews?menu=visitor"
}

// Load returns at least requested reviews when the business has that many,
// newest first. Fewer are returned, with the shortage flagged, when the
// list runs out.
func (l *Loader) Load(ctx context.Context, userID, placeID string, requested int, opts LoadOptions) (result *models.ReviewPage, err error) {
	if requested <= 0 {
		requested = defaultLoadCount
	}
	report := func(status models.ProgressStatus, count int, message string) {
		p := l.progress.Set(userID, placeID, status, count, message)
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
	}

	if cached, total, ok := l.cache.Lookup(userID, placeID, requested); ok {
		l.logger.Debug().
			Str("user_id", userID).
			Str("place_id", placeID).
			Int("cached", len(cached)).
			Msg("Serving reviews from cache")
		report(models.ProgressCompleted, len(cached), fmt.Sprintf("⚡ 캐시에서 로드 완료 (%d개)", len(cached)))
		return l.result(cached, total, requested, true), nil
	}

	defer func() {
		if err != nil {
			report(models.ProgressError, 0, "❌ 오류: "+firstRunes(err.Error(), 50))
		}
	}()

	existing := l.cache.Existing(userID, placeID)
	report(models.ProgressLoading, len(existing), "🚀 브라우저 시작 중...")

	page, release, err := l.browsers.Open(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	if err := l.openReviews(ctx, page, placeID); err != nil {
		return nil, err
	}

	run := &scrollRun{
		loader:    l,
		page:      page,
		placeID:   placeID,
		requested: requested,
		existing:  existing,
		report:    report,
		seen:      make(map[string]struct{}, len(existing)),
	}
	for _, r := range existing {
		run.seen[r.ReviewID] = struct{}{}
	}
	if err := run.execute(ctx); err != nil {
		return nil, err
	}

	bodyText, err := page.BodyText(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read review page text: %w", err)
	}
	total, totalFound := ExtractTotal(bodyText)

	if run.authored == 0 && !totalFound && len(existing) == 0 {
		return nil, fmt.Errorf("review list for place %s never rendered: %w", placeID, models.ErrContentNotFound)
	}

	merged := MergeReviews(existing, run.scraped)
	SortNewestFirst(merged)
	if !totalFound || total < len(merged) {
		total = len(merged)
	}

	l.cache.Put(ReviewCacheKey{UserID: userID, PlaceID: placeID, LoadCount: requested}, merged, total)

	l.logger.Info().
		Str("user_id", userID).
		Str("place_id", placeID).
		Int("requested", requested).
		Int("loaded", len(merged)).
		Int("new", len(run.scraped)).
		Int("total", total).
		Int("scrolls", run.scrolls).
		Bool("exhausted", run.exhausted).
		Dur("elapsed", time.Since(started)).
		Msg("Reviews loaded")

	report(models.ProgressCompleted, len(merged), fmt.Sprintf("✅ %d개 리뷰 로드 완료!", len(merged)))
	return l.result(merged, total, requested, false), nil
}

func (l *Loader) result(reviews []models.Review, total, requested int, cached bool) *models.ReviewPage {
	page := &models.ReviewPage{
		Reviews:   reviews,
		Total:     total,
		Requested: requested,
		Cached:    cached,
	}
	if page.Reviews == nil {
		page.Reviews = []models.Review{}
	}
	if shortage := requested - len(reviews); shortage > 0 {
		page.Shortage = shortage
		l.logger.Warn().
			Int("requested", requested).
			Int("returned", len(reviews)).
			Int("shortage", shortage).
			Msg("Fewer valid reviews available than requested")
	}
	return page
}

func (l *Loader) openReviews(ctx context.Context, page Page, placeID string) error {
	if err := page.Navigate(ctx, ReviewsURL(l.config.PlaceBaseURL, placeID)); err != nil {
		return fmt.Errorf("failed to open reviews for place %s: %w", placeID, err)
	}
	if err := checkLogin(ctx, page); err != nil {
		return err
	}
	if err := l.wait(ctx, l.config.SettleDelay); err != nil {
		return err
	}
	if _, err := page.DismissPopups(ctx); err != nil {
		l.logger.Debug().Err(err).Msg("Popup dismissal failed")
	}
	return waitForItems(ctx, page, l.config.RenderChecks, l.config.RenderPoll)
}

func checkLogin(ctx context.Context, page Page) error {
	current, err := page.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current url: %w", err)
	}
	if IsLoginURL(current) {
		return fmt.Errorf("redirected to login page: %w", models.ErrSessionExpired)
	}
	return nil
}

var errNoItems = errors.New("no list items rendered yet")

// waitForItems polls until at least one list item renders. A list that
// never renders is left to the caller to judge, so timeouts are not errors.
func waitForItems(ctx context.Context, page Page, checks int, poll time.Duration) error {
	var countErr error
	_ = retry.Do(
		func() error {
			n, err := page.ItemCount(ctx)
			if err != nil {
				countErr = err
				return retry.Unrecoverable(err)
			}
			if n == 0 {
				return errNoItems
			}
			return nil
		},
		retry.Attempts(uint(checks)),
		retry.Delay(poll),
		retry.MaxDelay(poll),
		retry.Context(ctx),
	)
	if countErr != nil {
		return fmt.Errorf("failed to count list items: %w", countErr)
	}
	return ctx.Err()
}

// scrollRun is the state of one scroll-to-load pass
type scrollRun struct {
	loader    *Loader
	page      Page
	placeID   string
	requested int
	existing  []models.Review
	report    func(models.ProgressStatus, int, string)

	scrolls    int
	rendered   int
	parsedUpTo int
	authored   int
	exhausted  bool
	skipRatio  float64
	sampled    bool
	estimateOK bool

	scraped []models.Review
	seen    map[string]struct{}
}

func (r *scrollRun) valid() int {
	return len(r.seen)
}

// execute alternates scrolling and parsing until enough valid reviews are
// parsed, the list stops growing, or the scroll budget is spent. The skip
// ratio estimate only decides when to pause and parse.
func (r *scrollRun) execute(ctx context.Context) error {
	cfg := r.loader.config
	maxScrolls := MaxScrolls(r.requested)
	target := int(float64(r.requested) * cfg.BufferFactor)
	r.estimateOK = cfg.SkipSampling

	for {
		if err := r.scroll(ctx, target, maxScrolls); err != nil {
			return err
		}
		if err := r.parseNew(ctx); err != nil {
			return err
		}
		if r.valid() >= r.requested || r.exhausted || r.scrolls >= maxScrolls {
			return nil
		}

		// The estimate undershot; aim past what is rendered and stop trusting it
		missing := r.requested - r.valid()
		target = r.rendered + max(minEstimateItems, int(float64(missing)*cfg.BufferFactor))
		r.estimateOK = false
		r.loader.logger.Debug().
			Str("place_id", r.placeID).
			Int("valid", r.valid()).
			Int("rendered", r.rendered).
			Int("new_target", target).
			Msg("Valid reviews short of request, scrolling further")
	}
}

func (r *scrollRun) scroll(ctx context.Context, target, maxScrolls int) error {
	cfg := r.loader.config
	noChange := 0

	for r.scrolls < maxScrolls {
		count, err := r.page.ItemCount(ctx)
		if err != nil {
			return fmt.Errorf("failed to count review items: %w", err)
		}

		if count > r.rendered {
			r.rendered = count
			noChange = 0
			msg := fmt.Sprintf("📈 %d개 리뷰 로드됨...", count)
			if r.sampled {
				msg += fmt.Sprintf(" (추정 유효: %d개)", r.estimated(count))
			}
			r.report(models.ProgressLoading, count, msg)
		} else {
			noChange++
		}

		if r.estimateOK && !r.sampled && count >= sampleSize {
			retarget, err := r.sample(ctx)
			if err != nil {
				return err
			}
			target = retarget
		}

		if r.estimateOK && r.sampled && count >= minEstimateItems && r.estimated(count) >= r.requested {
			return nil
		}
		if count >= target {
			return nil
		}
		if noChange >= cfg.NoChangeLimit {
			r.exhausted = true
			r.loader.logger.Debug().
				Str("place_id", r.placeID).
				Int("rendered", count).
				Int("scrolls", r.scrolls).
				Msg("Review list stopped growing")
			return nil
		}

		if err := r.page.ScrollToLastItem(ctx); err != nil {
			return fmt.Errorf("failed to scroll review list: %w", err)
		}
		if err := r.loader.wait(ctx, cfg.ScrollDelay); err != nil {
			return err
		}
		r.scrolls++
	}
	return nil
}

func (r *scrollRun) estimated(count int) int {
	return int(float64(count) * (1 - r.skipRatio))
}

// sample inspects the first rendered items once and returns a raw target
// adjusted for the share that will be filtered out
func (r *scrollRun) sample(ctx context.Context) (int, error) {
	raws, err := r.page.Items(ctx, 0, sampleSize)
	if err != nil {
		return 0, fmt.Errorf("failed to sample review items: %w", err)
	}
	kept, _ := ParseReviews(r.placeID, raws, r.loader.sel)
	r.sampled = true

	if len(raws) > 0 {
		r.skipRatio = 1 - float64(len(kept))/float64(len(raws))
	}
	var target int
	switch {
	case r.skipRatio >= 1:
		// Nothing valid in the sample; estimates would divide by zero
		r.estimateOK = false
		target = int(float64(r.requested) * r.loader.config.BufferFactor)
	case r.skipRatio > 0:
		target = int(float64(r.requested) / (1 - r.skipRatio) * 1.15)
	default:
		target = int(float64(r.requested) * 1.1)
	}

	r.loader.logger.Debug().
		Str("place_id", r.placeID).
		Int("sampled", len(raws)).
		Int("kept", len(kept)).
		Int("target", target).
		Msg("Sampled skip ratio")
	return target, nil
}

// parseNew expands and parses items rendered since the last parse
func (r *scrollRun) parseNew(ctx context.Context) error {
	if _, err := r.page.ExpandItems(ctx, r.parsedUpTo); err != nil {
		r.loader.logger.Debug().Err(err).Msg("Expanding review text failed")
	}
	raws, err := r.page.Items(ctx, r.parsedUpTo, 0)
	if err != nil {
		return fmt.Errorf("failed to read review items: %w", err)
	}
	r.report(models.ProgressLoading, r.rendered, fmt.Sprintf("📝 %d개 항목 파싱 중...", len(raws)))

	skipped := make(map[string]int)
	for _, raw := range raws {
		if raw.Index >= r.parsedUpTo {
			r.parsedUpTo = raw.Index + 1
		}
		item, err := ParseItem(raw, r.loader.sel)
		if err != nil {
			skipped["parse_error"]++
			continue
		}
		if item.HasAuthor {
			r.authored++
		}
		if reason := SkipReason(item); reason != "" {
			skipped[reason]++
			continue
		}
		review := item.ToReview(r.placeID)
		if _, dup := r.seen[review.ReviewID]; dup {
			skipped["duplicate"]++
			continue
		}
		r.seen[review.ReviewID] = struct{}{}
		r.scraped = append(r.scraped, review)
	}

	r.loader.logger.Debug().
		Str("place_id", r.placeID).
		Int("parsed", len(raws)).
		Int("valid", r.valid()).
		Int("skipped_no_author", skipped["no_author"]).
		Int("skipped_anonymous", skipped["anonymous"]).
		Int("skipped_guide", skipped["guide"]+skipped["guide_message"]).
		Int("duplicates", skipped["duplicate"]).
		Msg("Parsed review items")
	return nil
}
