package naver

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/replydesk/internal/models"
)

// NoDate is recorded when an item renders no recognizable visit date
const NoDate = "날짜 없음"

var (
	dateTextPattern  = regexp.MustCompile(`20\d{2}\.`)
	replyDatePattern = regexp.MustCompile(`20\d{2}\.\s*\d{1,2}\.\s*\d{1,2}`)
	placeHrefPattern = regexp.MustCompile(`/bizes/place/(\d+)`)
	totalPatterns    = []*regexp.Regexp{
		regexp.MustCompile(`전체\s*(\d+)`),
		regexp.MustCompile(`리뷰\s*(\d+)`),
		regexp.MustCompile(`(\d+)\s*개의?\s*리뷰`),
	}
)

// ParsedItem is one list item reduced to the fields the algorithms need
type ParsedItem struct {
	Index     int
	HasAuthor bool
	Author    string
	Date      string
	Content   string
	HasReply  bool
	Reply     string
	ReplyDate string
}

// ParseItem extracts review fields from one item's markup
func ParseItem(raw RawItem, sel Selectors) (ParsedItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw.HTML))
	if err != nil {
		return ParsedItem{}, fmt.Errorf("failed to parse item %d: %w", raw.Index, err)
	}

	item := ParsedItem{Index: raw.Index, Date: NoDate}

	if author := doc.Find(sel.class(sel.AuthorClass)).First(); author.Length() > 0 {
		item.HasAuthor = true
		item.Author = visibleText(author)
	}

	doc.Find(sel.class(sel.DateClass)).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := visibleText(s)
		if dateTextPattern.MatchString(text) {
			item.Date = text
			return false
		}
		return true
	})

	if content := doc.Find(sel.class(sel.ContentClass)).First(); content.Length() > 0 {
		item.Content = visibleText(content)
	}

	if reply := doc.Find(sel.class(sel.ReplyClass)).First(); reply.Length() > 0 {
		item.HasReply = true
		item.Reply = visibleText(reply)
		item.ReplyDate = replyDatePattern.FindString(visibleText(reply.Parent()))
	}

	return item, nil
}

// visibleText approximates rendered text: line breaks survive, outer space does not
func visibleText(s *goquery.Selection) string {
	clone := s.Clone()
	clone.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(clone.Text())
}

// SkipReason returns why an item is not a customer review, or "" to keep it
func SkipReason(item ParsedItem) string {
	switch {
	case !item.HasAuthor || item.Author == "":
		return "no_author"
	case item.Author == "익명":
		return "anonymous"
	case strings.Contains(item.Author, "가이드"):
		return "guide"
	case strings.Contains(item.Content, "답글 잘 다는 방법"):
		return "guide_message"
	}
	return ""
}

// ReviewID derives a stable fingerprint from author, date and the first 30
// characters of content
func ReviewID(placeID, author, date, content string) string {
	sum := md5.Sum([]byte(author + "-" + date + "-" + firstRunes(content, 30)))
	return "naver-" + placeID + "-" + hex.EncodeToString(sum[:])[:8]
}

// ToReview converts a kept item into a review record
func (item ParsedItem) ToReview(placeID string) models.Review {
	return models.Review{
		ReviewID:  ReviewID(placeID, item.Author, item.Date, item.Content),
		PlaceID:   placeID,
		Author:    item.Author,
		Date:      item.Date,
		Content:   item.Content,
		HasReply:  item.HasReply,
		Reply:     item.Reply,
		ReplyDate: item.ReplyDate,
	}
}

// ParseReviews parses raw items, drops non-reviews and returns the rest in
// page order. Items that fail to parse are skipped.
func ParseReviews(placeID string, raws []RawItem, sel Selectors) (reviews []models.Review, skipped map[string]int) {
	skipped = make(map[string]int)
	for _, raw := range raws {
		item, err := ParseItem(raw, sel)
		if err != nil {
			skipped["parse_error"]++
			continue
		}
		if reason := SkipReason(item); reason != "" {
			skipped[reason]++
			continue
		}
		reviews = append(reviews, item.ToReview(placeID))
	}
	return reviews, skipped
}

// MergeReviews appends incoming to existing, keeping the first record seen
// for each fingerprint
func MergeReviews(existing, incoming []models.Review) []models.Review {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]models.Review, 0, len(existing)+len(incoming))
	for _, list := range [][]models.Review{existing, incoming} {
		for _, r := range list {
			if _, ok := seen[r.ReviewID]; ok {
				continue
			}
			seen[r.ReviewID] = struct{}{}
			merged = append(merged, r)
		}
	}
	return merged
}

// ExtractTotal finds the platform's self-reported review count in page text
func ExtractTotal(text string) (int, bool) {
	for _, pattern := range totalPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// ExtractPlaceLinks reads business listings from rendered dashboard anchors
func ExtractPlaceLinks(html, placeBaseURL string, sel Selectors) ([]models.Place, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard: %w", err)
	}

	var places []models.Place
	seen := make(map[string]struct{})
	doc.Find(sel.PlaceLink).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := placeHrefPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}

		name := firstLine(visibleText(a))
		if name == "" {
			name = firstLine(visibleText(a.Parent()))
		}
		places = append(places, newPlace(id, name, placeBaseURL))
	})
	return places, nil
}

// ExtractPlacesFromSource scans raw markup for place ids when no anchors
// rendered, recovering names from embedded state or nearby text
func ExtractPlacesFromSource(source, placeBaseURL string) []models.Place {
	var places []models.Place
	seen := make(map[string]struct{})
	for _, m := range placeHrefPattern.FindAllStringSubmatch(source, -1) {
		id := m[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		places = append(places, newPlace(id, nameFromSource(source, id), placeBaseURL))
	}
	return places
}

func nameFromSource(source, id string) string {
	quoted := regexp.QuoteMeta(id)
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`place/` + quoted + `[^{}]*?"businessName":"([^"]+)"`),
		regexp.MustCompile(`place/` + quoted + `[^<>]{0,200}>([가-힣\s]+)<`),
	}
	for _, p := range patterns {
		if m := p.FindStringSubmatch(source); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				return name
			}
		}
	}
	return ""
}

func newPlace(id, name, placeBaseURL string) models.Place {
	if name == "" {
		name = "매장 " + id
	}
	return models.Place{
		PlaceID: id,
		Name:    name,
		URL:     strings.TrimRight(placeBaseURL, "/") + "/" + id + "/reviews",
	}
}

// StripNonBMP removes characters outside the Basic Multilingual Plane,
// which the browser's key input cannot type. It returns the kept text and
// the removed characters.
func StripNonBMP(text string) (string, string) {
	var kept, removed strings.Builder
	for _, r := range text {
		if r > 0xFFFF {
			removed.WriteRune(r)
			continue
		}
		kept.WriteRune(r)
	}
	return kept.String(), removed.String()
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
