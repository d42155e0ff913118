package naver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/codeGROOVE-dev/retry"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/replydesk/internal/models"
)

// minReplyRunes must be present in the editor before submitting
const minReplyRunes = 10

// PosterConfig tunes locating, filling and verifying a reply
type PosterConfig struct {
	PlaceBaseURL   string
	PostInterval   time.Duration // minimum spacing between submissions
	SettleDelay    time.Duration
	RenderPoll     time.Duration
	RenderChecks   int
	BatchScrolls   int
	BatchPixels    int
	BatchDelay     time.Duration
	FocusDelay     time.Duration
	ActionDelay    time.Duration // after opening the editor and after submitting
	VerifyDelay    time.Duration
	VerifyAttempts int
	VerifyInterval time.Duration
}

// DefaultPosterConfig returns the production timings
func DefaultPosterConfig(placeBaseURL string, postInterval time.Duration) PosterConfig {
	return PosterConfig{
		PlaceBaseURL:   placeBaseURL,
		PostInterval:   postInterval,
		SettleDelay:    3 * time.Second,
		RenderPoll:     time.Second,
		RenderChecks:   10,
		BatchScrolls:   20,
		BatchPixels:    1500,
		BatchDelay:     1500 * time.Millisecond,
		FocusDelay:     time.Second,
		ActionDelay:    2 * time.Second,
		VerifyDelay:    4 * time.Second,
		VerifyAttempts: 3,
		VerifyInterval: 2 * time.Second,
	}
}

// Poster submits replies through the dashboard. Only one reply form is
// driven at a time across all users.
type Poster struct {
	mu       sync.Mutex
	browsers Browsers
	cache    *ReviewCache
	sel      Selectors
	config   PosterConfig
	limiter  *rate.Limiter
	logger   arbor.ILogger
	wait     waitFunc
	now      func() time.Time
}

// NewPoster creates a reply poster
func NewPoster(browsers Browsers, cache *ReviewCache, sel Selectors, config PosterConfig, logger arbor.ILogger) *Poster {
	if config.BatchScrolls <= 0 {
		config.BatchScrolls = 20
	}
	if config.VerifyAttempts <= 0 {
		config.VerifyAttempts = 3
	}
	if config.RenderChecks <= 0 {
		config.RenderChecks = 10
	}
	limit := rate.Inf
	if config.PostInterval > 0 {
		limit = rate.Every(config.PostInterval)
	}
	return &Poster{
		browsers: browsers,
		cache:    cache,
		sel:      sel,
		config:   config,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
		wait:     sleep,
		now:      time.Now,
	}
}

var errReplyNotVisible = errors.New("reply not visible yet")

// PostReply locates the review by composite match, fills and submits the
// reply, then confirms it rendered. On success the cached copies of that
// one review, found by fingerprint, are marked replied.
func (p *Poster) PostReply(ctx context.Context, req models.ReplyRequest) (*models.ReplyResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := NewMatchKey(req.Author, req.Date, req.Content)
	started := time.Now()

	p.logger.Info().
		Str("user_id", req.UserID).
		Str("place_id", req.PlaceID).
		Str("author_prefix", key.AuthorPrefix).
		Str("date", key.Date).
		Msg("Posting reply")

	page, release, err := p.browsers.Open(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := p.openUnanswered(ctx, page, req.PlaceID); err != nil {
		return nil, err
	}

	target, err := p.locate(ctx, page, key, req.ExpectedCount)
	if err != nil {
		return nil, err
	}
	if target.HasReply {
		return nil, fmt.Errorf("review by '%s...' on %s: %w", key.AuthorPrefix, key.Date, models.ErrAlreadyReplied)
	}

	if err := page.FocusItem(ctx, target.Index); err != nil {
		return nil, fmt.Errorf("failed to focus review: %w", err)
	}
	if err := p.wait(ctx, p.config.FocusDelay); err != nil {
		return nil, err
	}
	if err := page.OpenReplyEditor(ctx, target.Index); err != nil {
		return nil, fmt.Errorf("failed to open reply editor: %w", err)
	}
	if err := p.wait(ctx, p.config.ActionDelay); err != nil {
		return nil, err
	}

	text, removed := StripNonBMP(req.ReplyText)
	if removed != "" {
		p.logger.Warn().
			Str("removed", removed).
			Int("count", utf8.RuneCountInString(removed)).
			Msg("Removed characters the editor cannot accept")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("reply text is empty after removing unsupported characters")
	}
	if err := p.fill(ctx, page, target.Index, text); err != nil {
		return nil, err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := page.SubmitReply(ctx, target.Index); err != nil {
		return nil, fmt.Errorf("failed to submit reply: %w", err)
	}
	if err := p.wait(ctx, p.config.ActionDelay); err != nil {
		return nil, err
	}

	banner, err := page.ErrorBanner(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Error banner check failed")
	}
	if banner != "" {
		p.logger.Warn().Str("banner", banner).Msg("Platform showed an error after submit")
	}

	if err := p.verify(ctx, page, key); err != nil {
		if banner != "" {
			return nil, fmt.Errorf("platform reported %q: %w", banner, models.ErrVerificationFailed)
		}
		return nil, fmt.Errorf("reply by '%s...' on %s not visible after submit: %w", key.AuthorPrefix, key.Date, models.ErrVerificationFailed)
	}

	reviewID := ReviewID(req.PlaceID, target.Author, target.Date, target.Content)
	updated := p.cache.MarkReplied(req.UserID, req.PlaceID, reviewID, key.MatchesReview, text, p.now().Format(ReplyDateLayout))

	p.logger.Info().
		Str("user_id", req.UserID).
		Str("place_id", req.PlaceID).
		Int("cache_updates", updated).
		Dur("elapsed", time.Since(started)).
		Msg("Reply posted and verified")

	return &models.ReplyResult{
		Success:  true,
		Message:  "답글이 등록되었습니다",
		ReviewID: reviewID,
	}, nil
}

func (p *Poster) openUnanswered(ctx context.Context, page Page, placeID string) error {
	url := ReviewsURL(p.config.PlaceBaseURL, placeID) + "&hasReply=false"
	if err := page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to open reviews for place %s: %w", placeID, err)
	}
	if err := checkLogin(ctx, page); err != nil {
		return err
	}
	if err := p.wait(ctx, p.config.SettleDelay); err != nil {
		return err
	}
	if _, err := page.DismissPopups(ctx); err != nil {
		p.logger.Debug().Err(err).Msg("Popup dismissal failed")
	}
	return waitForItems(ctx, page, p.config.RenderChecks, p.config.RenderPoll)
}

// locate searches newly revealed items batch by batch, then falls back to
// one exhaustive pass from the top of the list
func (p *Poster) locate(ctx context.Context, page Page, key MatchKey, expected int) (ParsedItem, error) {
	if expected <= 0 {
		expected = defaultLoadCount
	}

	next, seen, noLoad := 0, 0, 0
	for scrolls := 0; ; scrolls++ {
		raws, err := page.Items(ctx, next, 0)
		if err != nil {
			return ParsedItem{}, fmt.Errorf("failed to read review items: %w", err)
		}
		batch := p.authoredItems(raws)
		for _, raw := range raws {
			if raw.Index >= next {
				next = raw.Index + 1
			}
		}

		if match, ok := FindMatch(batch, key); ok {
			p.logger.Debug().Int("index", match.Index).Int("scrolls", scrolls).Msg("Target review found")
			return match, nil
		}

		seen += len(batch)
		if len(batch) == 0 {
			noLoad++
		} else {
			noLoad = 0
		}
		if seen >= expected || (noLoad >= 3 && scrolls >= 5) || scrolls >= p.config.BatchScrolls {
			break
		}

		if err := page.ScrollBy(ctx, p.config.BatchPixels); err != nil {
			return ParsedItem{}, fmt.Errorf("failed to scroll review list: %w", err)
		}
		if err := p.wait(ctx, p.config.BatchDelay); err != nil {
			return ParsedItem{}, err
		}
	}

	p.logger.Debug().Int("scanned", seen).Msg("Batch search missed, scanning full list")
	if err := page.ScrollToTop(ctx); err != nil {
		return ParsedItem{}, fmt.Errorf("failed to scroll to top: %w", err)
	}
	if err := p.wait(ctx, p.config.FocusDelay); err != nil {
		return ParsedItem{}, err
	}
	raws, err := page.Items(ctx, 0, 0)
	if err != nil {
		return ParsedItem{}, fmt.Errorf("failed to read review items: %w", err)
	}
	all := p.authoredItems(raws)
	if match, ok := FindMatch(all, key); ok {
		return match, nil
	}

	return ParsedItem{}, &models.ReviewNotFoundError{
		AuthorPrefix: key.AuthorPrefix,
		Date:         key.Date,
		Scanned:      len(all),
	}
}

func (p *Poster) authoredItems(raws []RawItem) []ParsedItem {
	items := make([]ParsedItem, 0, len(raws))
	for _, raw := range raws {
		item, err := ParseItem(raw, p.sel)
		if err != nil || !item.HasAuthor {
			continue
		}
		items = append(items, item)
	}
	return items
}

// fill types the reply, falling back to setting the value directly when
// keystrokes do not register
func (p *Poster) fill(ctx context.Context, page Page, index int, text string) error {
	need := min(minReplyRunes, len([]rune(text)))

	if err := page.TypeReply(ctx, index, text); err != nil {
		p.logger.Debug().Err(err).Msg("Keystroke input failed")
	}
	if err := p.wait(ctx, p.config.FocusDelay); err != nil {
		return err
	}
	if value, err := page.ReplyValue(ctx, index); err == nil && len([]rune(value)) >= need {
		return nil
	}

	p.logger.Debug().Msg("Keystroke input did not register, setting value directly")
	if err := page.SetReplyValue(ctx, index, text); err != nil {
		return fmt.Errorf("failed to fill reply editor: %w", err)
	}
	if err := p.wait(ctx, p.config.FocusDelay); err != nil {
		return err
	}
	value, err := page.ReplyValue(ctx, index)
	if err != nil {
		return fmt.Errorf("failed to read reply editor: %w", err)
	}
	if got := len([]rune(value)); got < need {
		return fmt.Errorf("reply editor holds %d characters after fill, expected at least %d", got, need)
	}
	return nil
}

// verify waits for the reply to render under the target review
func (p *Poster) verify(ctx context.Context, page Page, key MatchKey) error {
	if err := p.wait(ctx, p.config.VerifyDelay); err != nil {
		return err
	}
	loose := MatchKey{AuthorPrefix: key.AuthorPrefix, Date: key.Date}

	return retry.Do(
		func() error {
			raws, err := page.Items(ctx, 0, 0)
			if err != nil {
				return err
			}
			for _, item := range p.authoredItems(raws) {
				if loose.MatchesItem(item) && item.HasReply && strings.TrimSpace(item.Reply) != "" {
					return nil
				}
			}
			return errReplyNotVisible
		},
		retry.Attempts(uint(p.config.VerifyAttempts)),
		retry.Delay(p.config.VerifyInterval),
		retry.MaxDelay(p.config.VerifyInterval),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Debug().Int("attempt", int(n)+1).Msg("Reply not visible yet")
		}),
	)
}
