package naver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/replydesk/internal/common"
	"github.com/ternarybob/replydesk/internal/interfaces"
	"github.com/ternarybob/replydesk/internal/models"
)

// Evicter drops a user's pooled browser
type Evicter interface {
	Remove(userID string) bool
}

// Service is the entry point for everything done against the place
// dashboard on behalf of a user
type Service struct {
	sessions interfaces.SessionStore
	evicter  Evicter
	places   *PlaceLister
	loader   *Loader
	poster   *Poster
	progress *Tracker
	reviews  *ReviewCache
	listings *PlaceCache
	logger   arbor.ILogger
	cron     *cron.Cron
}

// NewService wires the lister, loader and poster over shared caches
func NewService(config common.NaverConfig, sessions interfaces.SessionStore, browsers Browsers, evicter Evicter, logger arbor.ILogger) *Service {
	reviews := NewReviewCache(common.ParseDuration(config.ReviewsCacheTTL, 10*time.Minute))
	listings := NewPlaceCache(common.ParseDuration(config.PlacesCacheTTL, 5*time.Minute))
	progress := NewTracker(common.ParseDuration(config.ProgressRetention, 30*time.Second))
	sel := DefaultSelectors

	return &Service{
		sessions: sessions,
		evicter:  evicter,
		places: NewPlaceLister(browsers, listings, sel, PlaceListerConfig{
			DashboardURL: config.DashboardURL,
			PlaceBaseURL: config.PlaceBaseURL,
			SettleDelay:  2 * time.Second,
			WaitTimeout:  common.ParseDuration(config.PlaceWaitTimeout, 10*time.Second),
			PollInterval: time.Second,
		}, logger),
		loader: NewLoader(browsers, reviews, progress, sel, LoaderConfig{
			PlaceBaseURL:  config.PlaceBaseURL,
			BufferFactor:  config.BufferFactor,
			SkipSampling:  config.SkipSampling,
			NoChangeLimit: config.NoChangeLimit,
			ScrollDelay:   common.ParseDuration(config.ScrollDelay, 500*time.Millisecond),
			SettleDelay:   2 * time.Second,
			RenderPoll:    time.Second,
			RenderChecks:  10,
		}, logger),
		poster: NewPoster(browsers, reviews, sel,
			DefaultPosterConfig(config.PlaceBaseURL, common.ParseDuration(config.PostInterval, 3*time.Second)),
			logger),
		progress: progress,
		reviews:  reviews,
		listings: listings,
		logger:   logger,
	}
}

// ListPlaces returns the businesses the user manages
func (s *Service) ListPlaces(ctx context.Context, userID string) ([]models.Place, error) {
	return s.places.List(ctx, userID)
}

// LoadReviews returns up to loadCount reviews for a business, newest first
func (s *Service) LoadReviews(ctx context.Context, userID, placeID string, loadCount int, opts LoadOptions) (*models.ReviewPage, error) {
	return s.loader.Load(ctx, userID, placeID, loadCount, opts)
}

// PostReply submits and verifies a reply
func (s *Service) PostReply(ctx context.Context, req models.ReplyRequest) (*models.ReplyResult, error) {
	return s.poster.PostReply(ctx, req)
}

// Progress returns the latest Progress Record for a business
func (s *Service) Progress(userID, placeID string) models.Progress {
	return s.progress.Get(userID, placeID)
}

// SaveSession persists uploaded cookies. A browser still holding the
// previous cookies is closed so the next operation replays the new ones.
func (s *Service) SaveSession(ctx context.Context, upload models.SessionUpload) (*models.SessionStatus, error) {
	if err := s.sessions.Save(ctx, upload.ToSession()); err != nil {
		return nil, err
	}
	s.evicter.Remove(upload.UserID)
	s.listings.Invalidate(upload.UserID)

	s.logger.Info().
		Str("user_id", upload.UserID).
		Str("username", upload.Username).
		Int("cookies", len(upload.Cookies)).
		Msg("Session uploaded")

	return s.SessionStatus(ctx, upload.UserID)
}

// SessionStatus reports whether the user has a usable session
func (s *Service) SessionStatus(ctx context.Context, userID string) (*models.SessionStatus, error) {
	status := &models.SessionStatus{UserID: userID}

	session, err := s.sessions.Load(ctx, userID)
	switch {
	case errors.Is(err, models.ErrNotAuthenticated):
		return status, nil
	case errors.Is(err, models.ErrSessionExpired):
		status.Expired = true
		return status, nil
	case err != nil:
		return nil, err
	}

	status.Authenticated = true
	status.CookieCount = len(session.Cookies)
	status.ExpiresAt = session.ExpiresAt
	status.LastUsed = session.LastUsed
	return status, nil
}

// Authorize checks that an external identity may act for the user. An
// empty email skips the check.
func (s *Service) Authorize(ctx context.Context, userID, email string) error {
	if email == "" {
		return nil
	}
	ok, err := s.sessions.HasAccess(ctx, userID, email)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s may not use session %s: %w", email, userID, models.ErrAccessDenied)
	}
	return nil
}

// Logout removes the session, the pooled browser and every cached result
// for the user
func (s *Service) Logout(ctx context.Context, userID string) (bool, error) {
	deleted, err := s.sessions.Delete(ctx, userID)
	if err != nil {
		return false, err
	}
	evicted := s.evicter.Remove(userID)
	s.listings.Invalidate(userID)
	cleared := s.reviews.InvalidateUser(userID)
	s.progress.ClearUser(userID)

	s.logger.Info().
		Str("user_id", userID).
		Bool("session_deleted", deleted).
		Bool("browser_closed", evicted).
		Int("cache_entries", cleared).
		Msg("User logged out")
	return deleted, nil
}

// Prune drops expired cache entries and stale progress records
func (s *Service) Prune() {
	reviews := s.reviews.Prune()
	progress := s.progress.Prune()
	if reviews > 0 || progress > 0 {
		s.logger.Debug().Int("reviews", reviews).Int("progress", progress).Msg("Pruned expired entries")
	}
}

// StartMaintenance prunes on a fixed interval until Stop
func (s *Service) StartMaintenance(interval time.Duration) error {
	if s.cron != nil {
		return fmt.Errorf("maintenance already running")
	}
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), s.Prune); err != nil {
		return fmt.Errorf("failed to schedule cache pruning: %w", err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts scheduled maintenance
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
}
