package fetch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonathan/startup-matcher/internal/retry"
)

// Fetcher returns the readable text of a page.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// PageFetcher fetches over HTTP and falls back to a Renderer for thin pages.
// Retryable failures are retried once.
type PageFetcher struct {
	opts     *Options
	renderer Renderer
	runner   retry.Runner
	logger   *slog.Logger
}

// PageOption configures a PageFetcher.
type PageOption func(*PageFetcher)

// WithOptions sets the HTTP options.
func WithOptions(opts *Options) PageOption {
	return func(f *PageFetcher) {
		if opts != nil {
			f.opts = opts
		}
	}
}

// WithRenderer enables the headless fallback.
func WithRenderer(r Renderer) PageOption {
	return func(f *PageFetcher) { f.renderer = r }
}

// WithSleeper replaces the retry sleeper, mainly for tests.
func WithSleeper(s retry.Sleeper) PageOption {
	return func(f *PageFetcher) { f.runner.Sleep = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PageOption {
	return func(f *PageFetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewPageFetcher creates a PageFetcher.
func NewPageFetcher(opts ...PageOption) *PageFetcher {
	f := &PageFetcher{
		opts:   DefaultOptions(),
		logger: slog.Default().With("component", "fetch"),
		runner: retry.Runner{
			Policy:    retry.Once(),
			Retryable: IsRetryable,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.runner.Logger = f.logger
	return f
}

// FetchText returns the page's text. Failures are *Error values matching ErrFetchFailed.
func (f *PageFetcher) FetchText(ctx context.Context, url string) (string, error) {
	var res *Result
	err := f.runner.Do(ctx, "fetch "+url, func(ctx context.Context) error {
		r, err := URL(ctx, url, f.opts)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return "", asFetchError(url, err)
	}

	text, err := ExtractText(res.HTML)
	if err != nil {
		return "", &Error{URL: url, Message: "failed to extract text", Cause: err}
	}
	if f.renderer == nil || !NeedsRender(text) {
		return text, nil
	}

	html, err := f.renderer.Render(ctx, url)
	if err != nil {
		// the thin HTTP text is still better than nothing
		f.logger.Warn("render fallback failed", "url", url, "error", err)
		return text, nil
	}
	rendered, err := ExtractText(html)
	if err != nil {
		return text, nil
	}
	if len(rendered) > len(text) {
		return rendered, nil
	}
	return text, nil
}

// asFetchError guarantees callers always see an *Error in the chain.
func asFetchError(url string, err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{URL: url, Message: "fetch aborted", Cause: err}
}
