package models

// Review is a parsed review item. ReviewID is a derived fingerprint, not a
// platform identifier.
type Review struct {
	ReviewID  string `json:"review_id"`
	PlaceID   string `json:"place_id"`
	Author    string `json:"author"`
	Date      string `json:"date"`
	Content   string `json:"content"`
	HasReply  bool   `json:"has_reply"`
	Reply     string `json:"reply,omitempty"`
	ReplyDate string `json:"reply_date,omitempty"`
}

// ReviewPage is the result of a review load
type ReviewPage struct {
	Reviews   []Review `json:"reviews"`
	Total     int      `json:"total"`
	Requested int      `json:"requested"`
	Shortage  int      `json:"shortage,omitempty"`
	Cached    bool     `json:"cached"`
}

// ReplyRequest identifies a review by composite key and carries the reply
type ReplyRequest struct {
	PlaceID       string `json:"place_id" validate:"required,numeric"`
	Author        string `json:"author" validate:"required"`
	Date          string `json:"date" validate:"required"`
	Content       string `json:"content"`
	ReplyText     string `json:"reply_text" validate:"required"`
	UserID        string `json:"user_id" validate:"required"`
	ExpectedCount int    `json:"expected_review_count" validate:"gte=0"`
}

// ReplyResult is returned by a successful reply post
type ReplyResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ReviewID string `json:"review_id,omitempty"`
}
