package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/replydesk/internal/models"
	"github.com/ternarybob/replydesk/internal/services/naver"
)

// ReviewOperations is the part of the naver service background tasks drive
type ReviewOperations interface {
	LoadReviews(ctx context.Context, userID, placeID string, loadCount int, opts naver.LoadOptions) (*models.ReviewPage, error)
	PostReply(ctx context.Context, req models.ReplyRequest) (*models.ReplyResult, error)
}

// ReviewLoadParams are the parameters of a review_load task
type ReviewLoadParams struct {
	PlaceID   string `json:"place_id"`
	LoadCount int    `json:"load_count"`
	UserID    string `json:"user_id"`
}

// Map converts the parameters to a task document field
func (p ReviewLoadParams) Map() map[string]interface{} {
	return toMap(p)
}

// ReplyPostParams converts a reply request to a task document field
func ReplyPostParams(req models.ReplyRequest) map[string]interface{} {
	return toMap(req)
}

// RegisterReviewHandlers binds the review_load and reply_post task types
func RegisterReviewHandlers(s *Service, ops ReviewOperations) {
	s.RegisterHandler(models.TaskTypeReviewLoad, func(ctx context.Context, task *models.Task, report ProgressFunc) (interface{}, error) {
		var params ReviewLoadParams
		if err := fromMap(task.Params, &params); err != nil {
			return nil, err
		}
		return ops.LoadReviews(ctx, task.UserID, params.PlaceID, params.LoadCount, naver.LoadOptions{
			OnProgress: func(p models.Progress) {
				report(models.TaskProgress{
					Current: p.Count,
					Total:   params.LoadCount,
					Message: p.Message,
				})
			},
		})
	})

	s.RegisterHandler(models.TaskTypeReplyPost, func(ctx context.Context, task *models.Task, report ProgressFunc) (interface{}, error) {
		var req models.ReplyRequest
		if err := fromMap(task.Params, &req); err != nil {
			return nil, err
		}
		req.UserID = task.UserID
		report(models.TaskProgress{Current: 0, Total: 1, Message: "답글 등록 중..."})
		return ops.PostReply(ctx, req)
	})
}

func toMap(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func fromMap(params map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode task params: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid task params: %w", err)
	}
	return nil
}
