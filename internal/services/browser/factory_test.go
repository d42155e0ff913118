package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/replydesk/internal/common"
	"github.com/ternarybob/replydesk/internal/models"
)

func TestCookieParams(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cookies := []models.Cookie{
		{Name: "NID_AUT", Value: "a", Domain: ".naver.com", Path: "/", Expiry: float64(now.Add(time.Hour).Unix()), Secure: true, HTTPOnly: true, SameSite: "Lax"},
		{Name: "stale", Value: "b", Domain: ".naver.com", Expiry: float64(now.Add(-time.Hour).Unix()), SameSite: "unspecified"},
	}

	params := CookieParams(cookies, now)
	require.Len(t, params, 2)

	assert.Equal(t, "NID_AUT", params[0].Name)
	assert.Equal(t, network.CookieSameSiteLax, params[0].SameSite)
	require.NotNil(t, params[0].Expires)
	assert.True(t, params[0].Expires.Time().Equal(now.Add(time.Hour)))

	assert.Nil(t, params[1].Expires, "past expiry becomes a session cookie")
	assert.Equal(t, network.CookieSameSite(""), params[1].SameSite)
	assert.Equal(t, "/", params[1].Path)
}

func TestResolveBinary(t *testing.T) {
	config := common.BrowserConfig{DeploymentPath: "/app/.chrome-for-testing/chrome-linux64/chrome"}
	existing := map[string]bool{
		"/app/.chrome-for-testing/chrome-linux64/chrome": true,
		"/usr/bin/chromium": true,
	}
	env := map[string]string{}
	lookup := lookupFunc{
		getenv: func(k string) string { return env[k] },
		exists: func(p string) bool { return existing[p] },
	}

	assert.Equal(t, "", resolveBinary(config, lookup), "local runs fall back to auto-discovery")

	env["DYNO"] = "web.1"
	assert.Equal(t, config.DeploymentPath, resolveBinary(config, lookup))

	config.BinaryPath = "/usr/bin/chromium"
	assert.Equal(t, "/usr/bin/chromium", resolveBinary(config, lookup), "explicit path wins")

	config.BinaryPath = "/missing/chrome"
	assert.Equal(t, config.DeploymentPath, resolveBinary(config, lookup))
}

// stubSessions serves fixed sessions; unknown users are not authenticated
type stubSessions struct {
	sessions map[string]*models.Session
}

func (s *stubSessions) Save(ctx context.Context, session *models.Session) error { return nil }

func (s *stubSessions) Load(ctx context.Context, userID string) (*models.Session, error) {
	session, ok := s.sessions[userID]
	if !ok {
		return nil, models.ErrNotAuthenticated
	}
	return session, nil
}

func (s *stubSessions) Exists(ctx context.Context, userID string) (bool, error) {
	_, ok := s.sessions[userID]
	return ok, nil
}

func (s *stubSessions) Delete(ctx context.Context, userID string) (bool, error) { return false, nil }

func (s *stubSessions) HasAccess(ctx context.Context, userID, email string) (bool, error) {
	return true, nil
}

func TestFactory_CreateWithoutSession(t *testing.T) {
	factory := NewFactory(common.BrowserConfig{}, &stubSessions{}, arbor.NewLogger())

	driver, err := factory.Create(context.Background(), true, "nobody")

	require.Error(t, err)
	assert.Nil(t, driver)
	assert.True(t, errors.Is(err, models.ErrNotAuthenticated))
	assert.False(t, errors.Is(err, models.ErrSessionExpired))
}

func TestFactory_CreateWithoutCookies(t *testing.T) {
	sessions := &stubSessions{sessions: map[string]*models.Session{
		"user-1": {UserID: "user-1"},
	}}
	factory := NewFactory(common.BrowserConfig{}, sessions, arbor.NewLogger())

	driver, err := factory.Create(context.Background(), true, "user-1")

	require.Error(t, err)
	assert.Nil(t, driver)
	assert.True(t, errors.Is(err, models.ErrSessionExpired))
	assert.False(t, errors.Is(err, models.ErrNotAuthenticated))
}
