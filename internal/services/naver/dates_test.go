package naver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/replydesk/internal/models"
)

func TestParseReviewDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024. 3. 15(금)", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"2024.3.15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"  2023.  12.   1  ", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), true},
		{"24.1.7.일", time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), true},
		{NoDate, time.Time{}, false},
		{"2024. 13. 1", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseReviewDate(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSortNewestFirst(t *testing.T) {
	reviews := []models.Review{
		{ReviewID: "a", Date: "2023. 5. 1"},
		{ReviewID: "bad1", Date: NoDate},
		{ReviewID: "b", Date: "2024. 3. 15(금)"},
		{ReviewID: "bad2", Date: "어제"},
		{ReviewID: "c", Date: "2024. 1. 2(화)"},
	}

	assert.NotPanics(t, func() { SortNewestFirst(reviews) })

	ids := make([]string, len(reviews))
	for i, r := range reviews {
		ids[i] = r.ReviewID
	}
	assert.Equal(t, []string{"b", "c", "a", "bad1", "bad2"}, ids)

	for i := 1; i < 3; i++ {
		prev, _ := ParseReviewDate(reviews[i-1].Date)
		cur, _ := ParseReviewDate(reviews[i].Date)
		assert.False(t, cur.After(prev))
	}
}

func TestCleanDate(t *testing.T) {
	assert.Equal(t, "2024. 3. 15", CleanDate(" 2024. 3. 15(금) "))
	assert.Equal(t, "2024. 3. 15", CleanDate("2024. 3. 15"))
}
