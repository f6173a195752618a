package fetch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// MinContentLength is the shortest extracted text accepted from a plain HTTP
// fetch. Shorter pages are assumed to be client-side rendered.
const MinContentLength = 500

// DefaultRenderTimeout bounds a headless render.
const DefaultRenderTimeout = 45 * time.Second

// NeedsRender reports whether text is too thin to trust.
func NeedsRender(text string) bool {
	return len(strings.TrimSpace(text)) < MinContentLength
}

// Renderer produces the HTML of a page after its scripts have run.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// ChromeRenderer renders pages in headless Chrome. Requires Chrome/Chromium on the host.
type ChromeRenderer struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Render navigates to url and returns the outer HTML once the body is ready.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("rendering page in headless browser", "url", url)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(DefaultUserAgent),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		// team grids are often lazy-loaded
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", &Error{URL: url, Message: "browser rendering failed", Cause: err}
	}
	if html == "" {
		return "", &Error{URL: url, Message: "browser returned empty document"}
	}

	logger.Debug("rendered page", "url", url, "bytes", len(html))
	return html, nil
}

var _ Renderer = (*ChromeRenderer)(nil)
