package naver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/replydesk/internal/services/browser"
)

const (
	targetAttr = "data-replydesk-target"
	editorAttr = "data-replydesk-editor"
)

var (
	_ Page     = (*ChromePage)(nil)
	_ Browsers = (*PoolBrowsers)(nil)
)

// PoolBrowsers opens pages on the user's pooled browser
type PoolBrowsers struct {
	pool   *browser.Pool
	sel    Selectors
	logger arbor.ILogger
}

// NewPoolBrowsers adapts the browser pool to the Browsers interface
func NewPoolBrowsers(pool *browser.Pool, sel Selectors, logger arbor.ILogger) *PoolBrowsers {
	return &PoolBrowsers{pool: pool, sel: sel, logger: logger}
}

func (b *PoolBrowsers) Open(ctx context.Context, userID string) (Page, func(), error) {
	handle, release, err := b.pool.Acquire(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return NewChromePage(handle.Context(), b.sel, b.logger), release, nil
}

// ChromePage implements Page over a chromedp tab
type ChromePage struct {
	tab    context.Context
	sel    Selectors
	logger arbor.ILogger
}

// NewChromePage wraps a chromedp tab context
func NewChromePage(tab context.Context, sel Selectors, logger arbor.ILogger) *ChromePage {
	return &ChromePage{tab: tab, sel: sel, logger: logger}
}

// run executes actions on the tab, aborting when ctx is cancelled. The tab
// itself stays open.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *ChromePage) eval(ctx context.Context, script string, out interface{}) error {
	return p.run(ctx, chromedp.Evaluate(script, out))
}

func js(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// targetJS resolves the marked review item, falling back to its index
func (p *ChromePage) targetJS(index int) string {
	return fmt.Sprintf(`(document.querySelector('[%s]') || document.querySelectorAll(%s)[%d] || null)`,
		targetAttr, js(p.sel.Item), index)
}

const visibleJS = `const visible = el => !!(el && (el.offsetWidth || el.offsetHeight || el.getClientRects().length));`

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *ChromePage) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *ChromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *ChromePage) BodyText(ctx context.Context) (string, error) {
	var text string
	err := p.eval(ctx, `document.body ? document.body.innerText : ''`, &text)
	return text, err
}

func (p *ChromePage) DismissPopups(ctx context.Context) (bool, error) {
	script := fmt.Sprintf(`(() => {
		%s
		for (const sel of %s) {
			for (const el of document.querySelectorAll(sel)) {
				if (visible(el)) { el.click(); return true; }
			}
		}
		return false;
	})()`, visibleJS, js(p.sel.Popups))

	var clicked bool
	if err := p.eval(ctx, script, &clicked); err != nil {
		return false, err
	}
	if clicked {
		p.logger.Debug().Msg("Dismissed popup")
		if err := p.run(ctx, chromedp.Sleep(time.Second)); err != nil {
			return true, err
		}
	}
	return clicked, nil
}

func (p *ChromePage) ItemCount(ctx context.Context) (int, error) {
	var n int
	err := p.eval(ctx, fmt.Sprintf(`document.querySelectorAll(%s).length`, js(p.sel.Item)), &n)
	return n, err
}

func (p *ChromePage) Items(ctx context.Context, from, limit int) ([]RawItem, error) {
	end := "undefined"
	if limit > 0 {
		end = fmt.Sprint(from + limit)
	}
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).slice(%d, %s).map(el => el.outerHTML)`,
		js(p.sel.Item), from, end)

	var markup []string
	if err := p.eval(ctx, script, &markup); err != nil {
		return nil, err
	}
	items := make([]RawItem, len(markup))
	for i, html := range markup {
		items[i] = RawItem{Index: from + i, HTML: html}
	}
	return items, nil
}

func (p *ChromePage) ExpandItems(ctx context.Context, from int) (int, error) {
	script := fmt.Sprintf(`(() => {
		let clicked = 0;
		Array.from(document.querySelectorAll(%s)).slice(%d).forEach(li => {
			const more = li.querySelector(%s);
			if (more) { try { more.click(); clicked++; } catch (e) {} }
		});
		return clicked;
	})()`, js(p.sel.Item), from, js(p.sel.class(p.sel.MoreClass)))

	var clicked int
	if err := p.eval(ctx, script, &clicked); err != nil {
		return 0, err
	}
	if clicked > 0 {
		return clicked, p.run(ctx, chromedp.Sleep(300*time.Millisecond))
	}
	return 0, nil
}

func (p *ChromePage) ScrollToLastItem(ctx context.Context) error {
	script := fmt.Sprintf(`(() => {
		const items = document.querySelectorAll(%s);
		if (items.length) { items[items.length - 1].scrollIntoView({block: 'end'}); }
		else { window.scrollTo(0, document.body.scrollHeight); }
		return items.length;
	})()`, js(p.sel.Item))
	var n int
	return p.eval(ctx, script, &n)
}

func (p *ChromePage) ScrollBy(ctx context.Context, pixels int) error {
	var ok bool
	return p.eval(ctx, fmt.Sprintf(`(window.scrollBy(0, %d), true)`, pixels), &ok)
}

func (p *ChromePage) ScrollToTop(ctx context.Context) error {
	var ok bool
	return p.eval(ctx, `(window.scrollTo(0, 0), true)`, &ok)
}

func (p *ChromePage) FocusItem(ctx context.Context, index int) error {
	script := fmt.Sprintf(`(() => {
		document.querySelectorAll('[%[1]s]').forEach(el => el.removeAttribute('%[1]s'));
		const el = document.querySelectorAll(%[2]s)[%[3]d];
		if (!el) { return false; }
		el.setAttribute('%[1]s', '1');
		el.scrollIntoView({block: 'center'});
		return true;
	})()`, targetAttr, js(p.sel.Item), index)

	var ok bool
	if err := p.eval(ctx, script, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("review item %d is no longer rendered", index)
	}
	return nil
}

func (p *ChromePage) OpenReplyEditor(ctx context.Context, index int) error {
	script := fmt.Sprintf(`(() => {
		%s
		const item = %s;
		if (!item) { return 'missing-item'; }
		const buttons = Array.from(item.querySelectorAll('button, a[role="button"]'));
		for (const label of %s) {
			const btn = buttons.find(b => visible(b) && (b.innerText || '').trim().includes(label));
			if (btn) { btn.click(); return 'clicked'; }
		}
		return 'missing-button';
	})()`, visibleJS, p.targetJS(index), js(p.sel.ReplyButtonLabels))

	var status string
	if err := p.eval(ctx, script, &status); err != nil {
		return err
	}
	if status != "clicked" {
		return fmt.Errorf("reply button not found (%s)", status)
	}
	return nil
}

// markEditor tags the reply textarea inside the item, or the last visible
// one on the page
func (p *ChromePage) markEditor(ctx context.Context, index int) error {
	script := fmt.Sprintf(`(() => {
		%[1]s
		document.querySelectorAll('[%[2]s]').forEach(el => el.removeAttribute('%[2]s'));
		const item = %[3]s;
		let editor = item ? Array.from(item.querySelectorAll(%[4]s)).find(visible) : null;
		if (!editor) {
			const all = Array.from(document.querySelectorAll(%[4]s)).filter(visible);
			editor = all[all.length - 1];
		}
		if (!editor) { return false; }
		editor.setAttribute('%[2]s', '1');
		return true;
	})()`, visibleJS, editorAttr, p.targetJS(index), js(p.sel.ReplyEditor))

	var ok bool
	if err := p.eval(ctx, script, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reply editor not found")
	}
	return nil
}

func (p *ChromePage) TypeReply(ctx context.Context, index int, text string) error {
	if err := p.markEditor(ctx, index); err != nil {
		return err
	}
	editor := fmt.Sprintf(`[%s]`, editorAttr)
	return p.run(ctx,
		chromedp.Focus(editor, chromedp.ByQuery),
		chromedp.Click(editor, chromedp.ByQuery),
		chromedp.Clear(editor, chromedp.ByQuery),
		chromedp.SendKeys(editor, text, chromedp.ByQuery),
	)
}

func (p *ChromePage) SetReplyValue(ctx context.Context, index int, text string) error {
	if err := p.markEditor(ctx, index); err != nil {
		return err
	}
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector('[%s]');
		const text = %s;
		el.focus();
		const setter = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(el), 'value');
		if (setter && setter.set) { setter.set.call(el, text); } else { el.value = text; }
		el.dispatchEvent(new Event('focus', {bubbles: true}));
		el.dispatchEvent(new InputEvent('input', {bubbles: true, data: text, inputType: 'insertText'}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		el.dispatchEvent(new Event('blur', {bubbles: true}));
		return el.value.length;
	})()`, editorAttr, js(text))

	var n int
	return p.eval(ctx, script, &n)
}

func (p *ChromePage) ReplyValue(ctx context.Context, index int) (string, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector('[%s]');
		return el ? el.value : '';
	})()`, editorAttr)
	var value string
	err := p.eval(ctx, script, &value)
	return value, err
}

func (p *ChromePage) SubmitReply(ctx context.Context, index int) error {
	script := fmt.Sprintf(`(() => {
		%s
		const label = %s;
		const matches = b => visible(b) && (b.innerText || '').trim() === label;
		const item = %s;
		let btn = item ? Array.from(item.querySelectorAll('button')).find(matches) : null;
		if (!btn) {
			const all = Array.from(document.querySelectorAll('button')).filter(matches);
			btn = all[all.length - 1];
		}
		if (!btn) { return 'missing'; }
		if (btn.disabled || btn.getAttribute('aria-disabled') === 'true') { return 'disabled'; }
		btn.click();
		return 'clicked';
	})()`, visibleJS, js(p.sel.SubmitLabel), p.targetJS(index))

	var status string
	if err := p.eval(ctx, script, &status); err != nil {
		return err
	}
	switch status {
	case "clicked":
		return nil
	case "disabled":
		return ErrSubmitDisabled
	default:
		return fmt.Errorf("submit button not found")
	}
}

func (p *ChromePage) ErrorBanner(ctx context.Context) (string, error) {
	script := fmt.Sprintf(`(() => {
		%s
		for (const sel of %s) {
			for (const el of document.querySelectorAll(sel)) {
				const text = (el.innerText || '').trim();
				if (visible(el) && text.length > 5 && !text.includes('스마트플레이스') && !text.includes('SmartPlace')) {
					return text;
				}
			}
		}
		return '';
	})()`, visibleJS, js(p.sel.ErrorBanners))

	var text string
	err := p.eval(ctx, script, &text)
	return text, err
}
