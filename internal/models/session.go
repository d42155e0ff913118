package models

import (
	"net/http"
	"strings"
	"time"
)

// Cookie is a browser cookie captured at login time. Field names follow the
// shape produced by the session creator (WebDriver cookie dictionaries).
type Cookie struct {
	Name     string  `json:"name" validate:"required"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expiry   float64 `json:"expiry,omitempty"` // unix seconds, 0 for session cookies
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// ToHTTPCookie converts to a net/http cookie
func (c Cookie) ToHTTPCookie() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	if c.Expiry > 0 {
		hc.Expires = time.Unix(int64(c.Expiry), 0)
	}
	switch strings.ToLower(c.SameSite) {
	case "strict":
		hc.SameSite = http.SameSiteStrictMode
	case "lax":
		hc.SameSite = http.SameSiteLaxMode
	case "none":
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}

// Fingerprint is the client identity the cookies were issued to
type Fingerprint struct {
	UserAgent    string `json:"user_agent,omitempty"`
	WindowWidth  int    `json:"window_width,omitempty"`
	WindowHeight int    `json:"window_height,omitempty"`
}

// IsZero reports whether no fingerprint was captured
func (f Fingerprint) IsZero() bool {
	return f.UserAgent == "" && f.WindowWidth == 0 && f.WindowHeight == 0
}

// Session holds the replayable authentication state for one user
type Session struct {
	UserID       string      `json:"user_id" badgerhold:"key"`
	Username     string      `json:"username,omitempty"`
	Cookies      []Cookie    `json:"cookies"`
	Fingerprint  Fingerprint `json:"fingerprint"`
	GoogleEmails []string    `json:"google_emails,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	ExpiresAt    time.Time   `json:"expires_at,omitempty"`
	LastUsed     time.Time   `json:"last_used"`
}

// IsExpired reports whether the session has an expiry that has passed
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// HasEmail reports whether the external identity may use this session
func (s *Session) HasEmail(email string) bool {
	for _, e := range s.GoogleEmails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

// AddEmail associates an external identity, ignoring duplicates
func (s *Session) AddEmail(email string) {
	email = strings.TrimSpace(email)
	if email == "" || s.HasEmail(email) {
		return
	}
	s.GoogleEmails = append(s.GoogleEmails, email)
}

// SessionUpload is the payload posted by the session creator after an
// interactive login
type SessionUpload struct {
	UserID       string   `json:"user_id" validate:"required"`
	Username     string   `json:"username"`
	Cookies      []Cookie `json:"cookies" validate:"required,min=1,dive"`
	UserAgent    string   `json:"user_agent"`
	WindowWidth  int      `json:"window_width" validate:"gte=0"`
	WindowHeight int      `json:"window_height" validate:"gte=0"`
	GoogleEmail  string   `json:"google_email" validate:"omitempty,email"`
}

// ToSession builds the record to persist
func (u SessionUpload) ToSession() *Session {
	s := &Session{
		UserID:   u.UserID,
		Username: u.Username,
		Cookies:  u.Cookies,
		Fingerprint: Fingerprint{
			UserAgent:    u.UserAgent,
			WindowWidth:  u.WindowWidth,
			WindowHeight: u.WindowHeight,
		},
	}
	s.AddEmail(u.GoogleEmail)
	return s
}

// SessionStatus is the public view of a stored session
type SessionStatus struct {
	UserID        string    `json:"user_id"`
	Authenticated bool      `json:"authenticated"`
	Expired       bool      `json:"expired"`
	CookieCount   int       `json:"cookie_count"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	LastUsed      time.Time `json:"last_used,omitempty"`
}
