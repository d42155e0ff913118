package interfaces

import (
	"context"

	"github.com/ternarybob/replydesk/internal/models"
)

// SessionStore persists per-user cookie sessions.
//
// Load returns models.ErrNotAuthenticated when no session exists and updates
// the session's LastUsed timestamp as a side effect. Backends that track
// expiry return models.ErrSessionExpired for sessions past ExpiresAt.
type SessionStore interface {
	Save(ctx context.Context, session *models.Session) error
	Load(ctx context.Context, userID string) (*models.Session, error)
	Exists(ctx context.Context, userID string) (bool, error)
	Delete(ctx context.Context, userID string) (bool, error)

	// HasAccess reports whether the external identity email may use the session
	HasAccess(ctx context.Context, userID, email string) (bool, error)
}
