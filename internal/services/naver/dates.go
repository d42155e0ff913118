package naver

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/replydesk/internal/models"
)

var (
	weekdayPattern     = regexp.MustCompile(`\([월화수목금토일]\)`)
	parenthesesPattern = regexp.MustCompile(`\([^)]*\)`)
)

// ReplyDateLayout is how locally recorded reply dates are written
const ReplyDateLayout = "2006. 01. 02"

// ParseReviewDate parses dates such as "2024. 3. 15(금)" or "24.3.15.금".
// The weekday annotation and irregular spacing are ignored.
func ParseReviewDate(s string) (time.Time, bool) {
	s = weekdayPattern.ReplaceAllString(s, "")
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(parts) < 3 {
		return time.Time{}, false
	}

	var ymd [3]int
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return time.Time{}, false
		}
		ymd[i] = n
	}
	if ymd[0] < 100 {
		ymd[0] += 2000
	}
	if ymd[1] < 1 || ymd[1] > 12 || ymd[2] < 1 || ymd[2] > 31 {
		return time.Time{}, false
	}
	return time.Date(ymd[0], time.Month(ymd[1]), ymd[2], 0, 0, 0, 0, time.UTC), true
}

// CleanDate drops any parenthesized annotation so dates compare across passes
func CleanDate(s string) string {
	return strings.TrimSpace(parenthesesPattern.ReplaceAllString(s, ""))
}

// SortNewestFirst orders reviews by visit date descending. Unparseable
// dates sort last, keeping their relative order.
func SortNewestFirst(reviews []models.Review) {
	type keyed struct {
		at time.Time
		ok bool
	}
	keys := make(map[string]keyed, len(reviews))
	for _, r := range reviews {
		at, ok := ParseReviewDate(r.Date)
		keys[r.Date] = keyed{at: at, ok: ok}
	}
	sort.SliceStable(reviews, func(i, j int) bool {
		a, b := keys[reviews[i].Date], keys[reviews[j].Date]
		if a.ok != b.ok {
			return a.ok
		}
		return a.at.After(b.at)
	})
}
