package naver

import (
	"strings"

	"github.com/ternarybob/replydesk/internal/models"
)

// MatchKey relocates a review across scrape passes: author prefix plus
// cleaned date, with a content check when the content is long enough to
// be distinctive
type MatchKey struct {
	AuthorPrefix string
	Date         string
	Content      string
}

// NewMatchKey normalizes the identifying fields of a review
func NewMatchKey(author, date, content string) MatchKey {
	return MatchKey{
		AuthorPrefix: firstRunes(strings.TrimSpace(author), 3),
		Date:         CleanDate(date),
		Content:      strings.TrimSpace(content),
	}
}

func (k MatchKey) matches(author, date, content string) bool {
	if !strings.HasPrefix(strings.TrimSpace(author), k.AuthorPrefix) {
		return false
	}
	if CleanDate(date) != k.Date {
		return false
	}
	if len([]rune(k.Content)) > 10 && content != "" {
		return strings.Contains(firstRunes(content, 100), firstRunes(k.Content, 50))
	}
	return true
}

// MatchesItem reports whether a rendered item is the target review
func (k MatchKey) MatchesItem(item ParsedItem) bool {
	return item.HasAuthor && k.matches(item.Author, item.Date, item.Content)
}

// MatchesReview reports whether a cached record is the target review
func (k MatchKey) MatchesReview(r models.Review) bool {
	return k.matches(r.Author, r.Date, r.Content)
}

// FindMatch returns the first item matching the key
func FindMatch(items []ParsedItem, key MatchKey) (ParsedItem, bool) {
	for _, item := range items {
		if key.MatchesItem(item) {
			return item, true
		}
	}
	return ParsedItem{}, false
}
