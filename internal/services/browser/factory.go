package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/replydesk/internal/common"
	"github.com/ternarybob/replydesk/internal/interfaces"
	"github.com/ternarybob/replydesk/internal/models"
)

// Factory launches browsers and replays a user's session cookies into them
type Factory struct {
	config   common.BrowserConfig
	sessions interfaces.SessionStore
	logger   arbor.ILogger
	binary   string
}

// NewFactory creates a Factory, resolving the browser binary once
func NewFactory(config common.BrowserConfig, sessions interfaces.SessionStore, logger arbor.ILogger) *Factory {
	binary := ResolveBinary(config)
	if binary != "" {
		logger.Info().Str("binary", binary).Msg("Using configured browser binary")
	} else {
		logger.Debug().Msg("No browser binary configured - chromedp will auto-discover")
	}

	return &Factory{
		config:   config,
		sessions: sessions,
		logger:   logger,
		binary:   binary,
	}
}

// CookieParams converts stored cookies to CDP parameters. Expired expiries
// are dropped so the cookie is still set for the browser session.
func CookieParams(cookies []models.Cookie, now time.Time) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if param.Path == "" {
			param.Path = "/"
		}

		if c.Expiry > 0 {
			expires := time.Unix(int64(c.Expiry), 0)
			if expires.After(now) {
				ts := cdp.TimeSinceEpoch(expires)
				param.Expires = &ts
			}
		}

		// Only the three standard values are accepted
		switch strings.ToLower(c.SameSite) {
		case "strict":
			param.SameSite = network.CookieSameSiteStrict
		case "lax":
			param.SameSite = network.CookieSameSiteLax
		case "none":
			param.SameSite = network.CookieSameSiteNone
		}

		params = append(params, param)
	}
	return params
}

func (f *Factory) isCritical(name string) bool {
	for _, c := range f.config.CriticalCookies {
		if c == name {
			return true
		}
	}
	return false
}

// Create launches a browser for userID with the session's fingerprint and
// cookies applied. Returns models.ErrNotAuthenticated when no session exists
// and models.ErrSessionExpired when no cookie could be loaded.
func (f *Factory) Create(ctx context.Context, headless bool, userID string) (*Driver, error) {
	session, err := f.sessions.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(session.Cookies) == 0 {
		return nil, fmt.Errorf("session for %s has no cookies: %w", userID, models.ErrSessionExpired)
	}

	userAgent := f.config.UserAgent
	width, height := f.config.WindowWidth, f.config.WindowHeight
	if session.Fingerprint.UserAgent != "" {
		userAgent = session.Fingerprint.UserAgent
	}
	if session.Fingerprint.WindowWidth > 0 && session.Fingerprint.WindowHeight > 0 {
		width, height = session.Fingerprint.WindowWidth, session.Fingerprint.WindowHeight
	}

	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", f.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "ko-KR"),
		chromedp.WindowSize(width, height),
		chromedp.UserAgent(userAgent),
	)
	if f.binary != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(f.binary))
	}

	// The browser outlives the request that created it, so it is rooted at Background
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	driver := &Driver{
		ctx:             browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		userAgent:       userAgent,
		createdAt:       time.Now(),
	}

	startupTimeout := common.ParseDuration(f.config.StartupTimeout, 30*time.Second)
	startupCtx, cancel := context.WithTimeout(browserCtx, startupTimeout)
	defer cancel()

	// Cookies can only be set once a page on the authenticating domain is open
	if err := chromedp.Run(startupCtx, network.Enable(), chromedp.Navigate(f.config.CookieURL)); err != nil {
		driver.Close()
		return nil, fmt.Errorf("browser failed startup navigation: %w", err)
	}

	loaded, failed := 0, []string{}
	criticalFailed := []string{}
	params := CookieParams(session.Cookies, time.Now())

	err = chromedp.Run(startupCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, cookie := range params {
			if err := network.SetCookie(cookie.Name, cookie.Value).
				WithDomain(cookie.Domain).
				WithPath(cookie.Path).
				WithSecure(cookie.Secure).
				WithHTTPOnly(cookie.HTTPOnly).
				WithSameSite(cookie.SameSite).
				WithExpires(cookie.Expires).
				Do(ctx); err != nil {
				failed = append(failed, cookie.Name)
				if f.isCritical(cookie.Name) {
					criticalFailed = append(criticalFailed, cookie.Name)
					f.logger.Warn().Err(err).Str("cookie_name", cookie.Name).Msg("Failed to inject critical cookie")
				} else {
					f.logger.Debug().Err(err).Str("cookie_name", cookie.Name).Msg("Failed to inject cookie")
				}
				continue
			}
			loaded++
		}
		return nil
	}))
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("cookie injection failed: %w", err)
	}

	if len(failed) > 0 {
		f.logger.Warn().
			Str("user_id", userID).
			Strs("failed_cookies", failed).
			Strs("critical_failed", criticalFailed).
			Msg("Some cookies could not be injected")
	}

	if loaded == 0 {
		driver.Close()
		return nil, fmt.Errorf("no cookies could be loaded for %s: %w", userID, models.ErrSessionExpired)
	}

	// Reload so the injected cookies apply before any authenticated navigation
	if err := chromedp.Run(startupCtx, chromedp.Reload()); err != nil {
		driver.Close()
		return nil, fmt.Errorf("browser failed to reload after cookie injection: %w", err)
	}

	f.logger.Info().
		Str("user_id", userID).
		Int("cookies_loaded", loaded).
		Int("cookies_failed", len(failed)).
		Bool("headless", headless).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser created with session cookies")

	return driver, nil
}
