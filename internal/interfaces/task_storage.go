package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/replydesk/internal/models"
)

// TaskStorage persists background task documents
type TaskStorage interface {
	SaveTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasksByUser(ctx context.Context, userID string) ([]*models.Task, error)
	ListTasksByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error)
	DeleteTasksBefore(ctx context.Context, cutoff time.Time) (int, error)
}
