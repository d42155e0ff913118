package models

import "time"

// TaskType identifies the work a background task performs
type TaskType string

const (
	TaskTypeReviewLoad TaskType = "review_load"
	TaskTypeReplyPost  TaskType = "reply_post"
)

// TaskStatus is the lifecycle state of a background task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransition enforces pending -> processing -> completed|failed
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusProcessing || next == TaskStatusFailed
	case TaskStatusProcessing:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	}
	return false
}

// TaskProgress is the progress sub-record of a task
type TaskProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// Task is a persisted unit of background work
type Task struct {
	ID          string                 `json:"task_id" badgerhold:"key"`
	Type        TaskType               `json:"type"`
	UserID      string                 `json:"user_id"`
	Params      map[string]interface{} `json:"params"`
	Status      TaskStatus             `json:"status"`
	Progress    TaskProgress           `json:"progress"`
	Result      interface{}            `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}
