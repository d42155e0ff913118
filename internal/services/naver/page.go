package naver

import (
	"context"
	"errors"
	"strings"
	"time"
)

// RawItem is the rendered markup of one list item together with its
// position among all list items on the page.
type RawItem struct {
	Index int
	HTML  string
}

// ErrSubmitDisabled is returned when the reply form refuses submission
var ErrSubmitDisabled = errors.New("submit button is disabled")

// Page drives one authenticated browser tab. Implementations own every
// selector and script; the loader, lister and poster only see items,
// markup and counts.
type Page interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// HTML returns the current DOM serialized as markup
	HTML(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	// DismissPopups closes the first visible modal, reporting whether one was found
	DismissPopups(ctx context.Context) (bool, error)

	ItemCount(ctx context.Context) (int, error)
	// Items returns up to limit items starting at index from; limit <= 0 means all
	Items(ctx context.Context, from, limit int) ([]RawItem, error)
	// ExpandItems clicks "more" toggles on items at or after from
	ExpandItems(ctx context.Context, from int) (int, error)
	ScrollToLastItem(ctx context.Context) error
	ScrollBy(ctx context.Context, pixels int) error
	ScrollToTop(ctx context.Context) error

	// FocusItem scrolls the item into the middle of the viewport
	FocusItem(ctx context.Context, index int) error
	OpenReplyEditor(ctx context.Context, index int) error
	TypeReply(ctx context.Context, index int, text string) error
	// SetReplyValue writes the editor value directly and fires input events
	SetReplyValue(ctx context.Context, index int, text string) error
	ReplyValue(ctx context.Context, index int) (string, error)
	SubmitReply(ctx context.Context, index int) error
	// ErrorBanner returns visible error text, or "" when none is shown
	ErrorBanner(ctx context.Context) (string, error)
}

// Browsers hands out pages bound to a user's authenticated browser.
// release must be called once the page is no longer needed.
type Browsers interface {
	Open(ctx context.Context, userID string) (page Page, release func(), err error)
}

// IsLoginURL reports whether navigation was redirected to a login page
func IsLoginURL(u string) bool {
	return strings.Contains(u, "nid.naver.com") || strings.Contains(strings.ToLower(u), "login")
}

type waitFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
