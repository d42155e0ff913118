package naver

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/replydesk/internal/models"
)

// PlaceListerConfig tunes dashboard scraping
type PlaceListerConfig struct {
	DashboardURL string
	PlaceBaseURL string
	SettleDelay  time.Duration
	WaitTimeout  time.Duration // ceiling for business links to render
	PollInterval time.Duration
}

// PlaceLister discovers the businesses a user manages
type PlaceLister struct {
	browsers Browsers
	cache    *PlaceCache
	sel      Selectors
	config   PlaceListerConfig
	logger   arbor.ILogger
	wait     waitFunc
}

// NewPlaceLister creates a place lister
func NewPlaceLister(browsers Browsers, cache *PlaceCache, sel Selectors, config PlaceListerConfig, logger arbor.ILogger) *PlaceLister {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	return &PlaceLister{
		browsers: browsers,
		cache:    cache,
		sel:      sel,
		config:   config,
		logger:   logger,
		wait:     sleep,
	}
}

// List returns the user's businesses. An empty list is a valid answer; a
// login redirect is reported as ErrSessionExpired.
func (l *PlaceLister) List(ctx context.Context, userID string) ([]models.Place, error) {
	if places, ok := l.cache.Get(userID); ok {
		l.logger.Debug().Str("user_id", userID).Int("places", len(places)).Msg("Serving places from cache")
		return places, nil
	}

	page, release, err := l.browsers.Open(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := page.Navigate(ctx, l.config.DashboardURL); err != nil {
		return nil, fmt.Errorf("failed to open dashboard: %w", err)
	}
	if err := checkLogin(ctx, page); err != nil {
		return nil, err
	}
	if err := l.wait(ctx, l.config.SettleDelay); err != nil {
		return nil, err
	}
	if _, err := page.DismissPopups(ctx); err != nil {
		l.logger.Debug().Err(err).Msg("Popup dismissal failed")
	}

	places, source, err := l.scan(ctx, page)
	if err != nil {
		return nil, err
	}
	if places == nil {
		places = ExtractPlacesFromSource(source, l.config.PlaceBaseURL)
		l.logger.Debug().Int("places", len(places)).Msg("No business links rendered, used page source")
	}
	if places == nil {
		places = []models.Place{}
	}

	l.cache.Put(userID, places)
	l.logger.Info().Str("user_id", userID).Int("places", len(places)).Msg("Places listed")
	return places, nil
}

// scan polls the rendered dashboard until business links appear or the
// wait ceiling passes, returning the last markup seen
func (l *PlaceLister) scan(ctx context.Context, page Page) ([]models.Place, string, error) {
	deadline := time.Now().Add(l.config.WaitTimeout)
	for {
		html, err := page.HTML(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read dashboard: %w", err)
		}
		places, err := ExtractPlaceLinks(html, l.config.PlaceBaseURL, l.sel)
		if err != nil {
			return nil, "", err
		}
		if len(places) > 0 || !time.Now().Before(deadline) {
			return places, html, nil
		}
		if err := l.wait(ctx, l.config.PollInterval); err != nil {
			return nil, "", err
		}
	}
}
