package models

import "time"

// ProgressStatus is the state of a review load
type ProgressStatus string

const (
	ProgressIdle      ProgressStatus = "idle"
	ProgressLoading   ProgressStatus = "loading"
	ProgressCompleted ProgressStatus = "completed"
	ProgressError     ProgressStatus = "error"
)

// IsTerminal reports whether the status ends a load
func (s ProgressStatus) IsTerminal() bool {
	return s == ProgressCompleted || s == ProgressError
}

// Progress is published while a review load runs
type Progress struct {
	Status    ProgressStatus `json:"status"`
	Count     int            `json:"count"`
	Message   string         `json:"message"`
	UpdatedAt time.Time      `json:"timestamp"`
}
