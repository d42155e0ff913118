package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// Handle is a live browser the pool can check and close
type Handle interface {
	// Context returns the chromedp context that actions run against
	Context() context.Context
	UserAgent() string
	CreatedAt() time.Time
	// Alive runs a trivial command against the browser
	Alive(ctx context.Context) bool
	Close() error
}

// Driver is a chromedp-backed browser instance authenticated for one user
type Driver struct {
	ctx             context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	userAgent       string
	createdAt       time.Time
	closeOnce       sync.Once
}

func (d *Driver) Context() context.Context { return d.ctx }

func (d *Driver) UserAgent() string { return d.userAgent }

func (d *Driver) CreatedAt() time.Time { return d.createdAt }

// Alive reads the current URL with a short timeout
func (d *Driver) Alive(ctx context.Context) bool {
	if d.ctx.Err() != nil {
		return false
	}

	checkCtx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
	defer cancel()

	// Stop probing early if the caller gives up
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var location string
	return chromedp.Run(checkCtx, chromedp.Location(&location)) == nil
}

// Close shuts down the browser process. Safe to call more than once.
func (d *Driver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = chromedp.Cancel(d.ctx)
		d.browserCancel()
		d.allocatorCancel()
	})
	return err
}
