package naver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// reviewHTML renders one list item the way the dashboard does
func reviewHTML(author, date, content, reply string) string {
	var b strings.Builder
	b.WriteString(`<li class="place_review">`)
	if author != "" {
		fmt.Fprintf(&b, `<div class="info"><span class="pui__JiVbY3">%s</span></div>`, author)
	}
	fmt.Fprintf(&b, `<div class="meta"><span class="pui__m7nkds">방문일</span><span class="pui__m7nkds">%s</span></div>`, date)
	if content != "" {
		fmt.Fprintf(&b, `<a class="pui__vn15t2">%s</a><a class="pui__wFzIYl">더보기</a>`, content)
	}
	if reply != "" {
		fmt.Fprintf(&b, `<div class="reply"><span class="pui__GbW8H7">%s</span><span>2024. 4. 2.</span></div>`, reply)
	} else {
		b.WriteString(`<button>답글 쓰기</button>`)
	}
	b.WriteString(`</li>`)
	return b.String()
}

// fakePage renders items step at a time as the list is scrolled
type fakePage struct {
	mu sync.Mutex

	items    []string
	step     int
	rendered int
	body     string
	html     string
	redirect bool
	url      string

	scrolls      int
	navigations  int
	focused      int
	editorOpened bool
	typed        bool
	keysWork     bool
	value        string
	submitted    bool
	disabled     bool
	replyOnPost  string
	banner       string
}

func newFakePage(items []string, step int) *fakePage {
	return &fakePage{items: items, step: step, focused: -1}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations++
	p.url = url
	if p.redirect {
		p.url = "https://nid.naver.com/nidlogin.login"
	}
	p.rendered = min(p.step, len(p.items))
	return nil
}

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) { return p.html, nil }

func (p *fakePage) BodyText(ctx context.Context) (string, error) { return p.body, nil }

func (p *fakePage) DismissPopups(ctx context.Context) (bool, error) { return false, nil }

func (p *fakePage) ItemCount(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rendered, nil
}

func (p *fakePage) Items(ctx context.Context, from, limit int) ([]RawItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	end := p.rendered
	if limit > 0 && from+limit < end {
		end = from + limit
	}
	var out []RawItem
	for i := from; i < end; i++ {
		out = append(out, RawItem{Index: i, HTML: p.items[i]})
	}
	return out, nil
}

func (p *fakePage) ExpandItems(ctx context.Context, from int) (int, error) { return 0, nil }

func (p *fakePage) grow() {
	p.scrolls++
	p.rendered = min(p.rendered+p.step, len(p.items))
}

func (p *fakePage) ScrollToLastItem(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grow()
	return nil
}

func (p *fakePage) ScrollBy(ctx context.Context, pixels int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grow()
	return nil
}

func (p *fakePage) ScrollToTop(ctx context.Context) error { return nil }

func (p *fakePage) FocusItem(ctx context.Context, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.focused = index
	return nil
}

func (p *fakePage) OpenReplyEditor(ctx context.Context, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.editorOpened = true
	return nil
}

func (p *fakePage) TypeReply(ctx context.Context, index int, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed = true
	if p.keysWork {
		p.value = text
	}
	return nil
}

func (p *fakePage) SetReplyValue(ctx context.Context, index int, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = text
	return nil
}

func (p *fakePage) ReplyValue(ctx context.Context, index int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, nil
}

func (p *fakePage) SubmitReply(ctx context.Context, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disabled {
		return ErrSubmitDisabled
	}
	p.submitted = true
	if p.replyOnPost != "" && p.focused >= 0 {
		p.items[p.focused] = strings.Replace(p.items[p.focused], `<button>답글 쓰기</button>`,
			fmt.Sprintf(`<div class="reply"><span class="pui__GbW8H7">%s</span></div>`, p.replyOnPost), 1)
	}
	return nil
}

func (p *fakePage) ErrorBanner(ctx context.Context) (string, error) { return p.banner, nil }

type fakeBrowsers struct {
	mu       sync.Mutex
	page     *fakePage
	err      error
	opened   int
	released int
}

func (b *fakeBrowsers) Open(ctx context.Context, userID string) (Page, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, nil, b.err
	}
	b.opened++
	return b.page, func() {
		b.mu.Lock()
		b.released++
		b.mu.Unlock()
	}, nil
}

func noWait(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testLogger() arbor.ILogger { return arbor.NewLogger() }

// visitorReviews builds n valid reviews with distinct authors and dates
func visitorReviews(from, n int) []string {
	items := make([]string, 0, n)
	for i := from; i < from+n; i++ {
		date := fmt.Sprintf("2024. %d. %d(월)", 1+i%12, 1+i%28)
		items = append(items, reviewHTML(fmt.Sprintf("손님%03d", i), date, fmt.Sprintf("맛있게 잘 먹었습니다 방문 %d번째", i), ""))
	}
	return items
}
