package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/replydesk/internal/interfaces"
	"github.com/ternarybob/replydesk/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SessionStorage is the document-store session backend. Each user's session
// is one document keyed by user id, with an expiry and the set of external
// identity emails allowed to use it.
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionStorage creates a new SessionStorage instance. ttl sets ExpiresAt
// on sessions saved without one; zero disables expiry.
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger, ttl time.Duration) interfaces.SessionStore {
	return &SessionStorage{
		db:     db,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *SessionStorage) Save(ctx context.Context, session *models.Session) error {
	if session.UserID == "" {
		return fmt.Errorf("session user ID is required")
	}

	now := s.now()

	// Uploading again keeps previously associated identities
	var existing models.Session
	if err := s.db.Store().Get(session.UserID, &existing); err == nil {
		for _, email := range existing.GoogleEmails {
			session.AddEmail(email)
		}
		if session.CreatedAt.IsZero() {
			session.CreatedAt = existing.CreatedAt
		}
	} else if !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to read session: %w", err)
	}

	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.ExpiresAt.IsZero() && s.ttl > 0 {
		session.ExpiresAt = now.Add(s.ttl)
	}
	session.LastUsed = now

	if err := s.db.Store().Upsert(session.UserID, session); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Debug().
		Str("user_id", session.UserID).
		Int("cookies", len(session.Cookies)).
		Time("expires_at", session.ExpiresAt).
		Msg("Session stored")
	return nil
}

func (s *SessionStorage) get(userID string) (*models.Session, error) {
	var session models.Session
	if err := s.db.Store().Get(userID, &session); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (s *SessionStorage) Load(ctx context.Context, userID string) (*models.Session, error) {
	session, err := s.get(userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if session.IsExpired(now) {
		return nil, fmt.Errorf("session for %s expired at %s: %w", userID, session.ExpiresAt.Format(time.RFC3339), models.ErrSessionExpired)
	}

	session.LastUsed = now
	if err := s.db.Store().Update(userID, session); err != nil {
		// Reads still succeed when the timestamp cannot be written
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to update session last_used")
	}
	return session, nil
}

func (s *SessionStorage) Exists(ctx context.Context, userID string) (bool, error) {
	session, err := s.get(userID)
	if errors.Is(err, models.ErrNotAuthenticated) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !session.IsExpired(s.now()), nil
}

func (s *SessionStorage) Delete(ctx context.Context, userID string) (bool, error) {
	if err := s.db.Store().Delete(userID, &models.Session{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return true, nil
}

// HasAccess allows every identity until one has been associated
func (s *SessionStorage) HasAccess(ctx context.Context, userID, email string) (bool, error) {
	session, err := s.get(userID)
	if err != nil {
		return false, err
	}
	if len(session.GoogleEmails) == 0 {
		return true, nil
	}
	return session.HasEmail(email), nil
}
