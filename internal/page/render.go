package page

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultRenderTimeout bounds one headless page load.
const DefaultRenderTimeout = 30 * time.Second

// ChromeRenderer loads pages in headless Chromium via chromedp and returns
// the DOM after scripts ran.
type ChromeRenderer struct {
	// WaitSelector is waited for before reading the DOM; "body" if empty.
	WaitSelector string
	Timeout      time.Duration
	// Settle is an extra pause for late script updates.
	Settle time.Duration
}

// RenderHTML navigates to url and returns the outer HTML of the document.
func (r ChromeRenderer) RenderHTML(parentCtx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("render: URL is required")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	sel := r.WaitSelector
	if sel == "" {
		sel = "body"
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	var doc string
	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady(sel, chromedp.ByQuery),
	}
	if r.Settle > 0 {
		tasks = append(tasks, chromedp.Sleep(r.Settle))
	}
	tasks = append(tasks, chromedp.OuterHTML("html", &doc, chromedp.ByQuery))

	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("render: chromedp run failed: %w", err)
	}
	return doc, nil
}
