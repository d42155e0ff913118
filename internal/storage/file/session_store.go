package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/replydesk/internal/interfaces"
	"github.com/ternarybob/replydesk/internal/models"
)

// SessionStore keeps one JSON file per user under dir. It is the local
// development backend; expiry is recorded but not enforced.
type SessionStore struct {
	dir    string
	logger arbor.ILogger
	mu     sync.Mutex
	now    func() time.Time
}

// NewSessionStore creates the directory if needed
func NewSessionStore(dir string, logger arbor.ILogger) (interfaces.SessionStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &SessionStore{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}, nil
}

// path escapes the id reversibly, so distinct ids never share a file
func (s *SessionStore) path(userID string) string {
	return filepath.Join(s.dir, url.QueryEscape(userID)+"_cookies.json")
}

func (s *SessionStore) read(userID string) (*models.Session, error) {
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) write(session *models.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	// Write then rename so a crash never leaves a truncated file
	tmp := s.path(session.UserID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path(session.UserID)); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (s *SessionStore) Save(ctx context.Context, session *models.Session) error {
	if session.UserID == "" {
		return fmt.Errorf("session user ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.read(session.UserID); err == nil {
		for _, email := range existing.GoogleEmails {
			session.AddEmail(email)
		}
	}

	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.LastUsed = now

	if err := s.write(session); err != nil {
		return err
	}

	s.logger.Debug().
		Str("user_id", session.UserID).
		Int("cookies", len(session.Cookies)).
		Str("path", s.path(session.UserID)).
		Msg("Session saved to file")
	return nil
}

func (s *SessionStore) Load(ctx context.Context, userID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.read(userID)
	if err != nil {
		return nil, err
	}

	session.LastUsed = s.now()
	if err := s.write(session); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to update session last_used")
	}
	return session, nil
}

func (s *SessionStore) Exists(ctx context.Context, userID string) (bool, error) {
	_, err := os.Stat(s.path(userID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat session file: %w", err)
}

func (s *SessionStore) Delete(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(userID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete session file: %w", err)
	}
	return true, nil
}

// HasAccess allows every identity when none were associated
func (s *SessionStore) HasAccess(ctx context.Context, userID, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.read(userID)
	if err != nil {
		return false, err
	}
	if len(session.GoogleEmails) == 0 {
		return true, nil
	}
	return session.HasEmail(email), nil
}
