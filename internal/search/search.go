// Package search issues rate-limited, cached web searches and normalizes the
// backend's answers into a strict result schema.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-playground/validator/v10"

	"github.com/jonathan/startup-matcher/internal/ratelimit"
	"github.com/jonathan/startup-matcher/internal/retry"
)

var (
	// ErrRateLimited means the backend refused the query because of quota or throttling.
	ErrRateLimited = errors.New("search backend rate limited")
	// ErrSearchUnavailable means the backend failed or answered with something unusable.
	ErrSearchUnavailable = errors.New("search backend unavailable")
)

const (
	// DefaultCacheTTL bounds how long a query's results are reused.
	DefaultCacheTTL = 10 * time.Minute
	// DefaultTimeout bounds a single backend call.
	DefaultTimeout = 15 * time.Second
	// DefaultResultsPerQuery is how many results are requested from the backend.
	DefaultResultsPerQuery = 5
)

// Result is one normalized search hit.
type Result struct {
	URL     string `json:"url" validate:"required,http_url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// RawItem is a backend answer before validation.
type RawItem struct {
	Link    string
	Title   string
	Snippet string
}

// Backend is a web search provider.
type Backend interface {
	Query(ctx context.Context, query string, num int) ([]RawItem, error)
}

// Searcher is what the discovery tiers depend on.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Client wraps a Backend with the shared gate, backoff and a TTL cache.
type Client struct {
	backend  Backend
	gate     *ratelimit.Gate
	cache    *ristretto.Cache[string, []Result]
	ttl      time.Duration
	timeout  time.Duration
	num      int
	runner   retry.Runner
	validate *validator.Validate
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCacheTTL sets how long results are cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithResultsPerQuery sets how many results are requested.
func WithResultsPerQuery(n int) Option {
	return func(c *Client) { c.num = n }
}

// WithRetryPolicy replaces the backoff policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.runner.Policy = p }
}

// WithSleeper replaces the backoff sleeper, mainly for tests.
func WithSleeper(s retry.Sleeper) Option {
	return func(c *Client) { c.runner.Sleep = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient builds a Client. gate must be the process-wide gate for this backend.
func NewClient(backend Backend, gate *ratelimit.Gate, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("search backend is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("rate limit gate is required")
	}

	c := &Client{
		backend:  backend,
		gate:     gate,
		ttl:      DefaultCacheTTL,
		timeout:  DefaultTimeout,
		num:      DefaultResultsPerQuery,
		validate: validator.New(),
		logger:   slog.Default().With("component", "search"),
		runner: retry.Runner{
			Policy: retry.DefaultPolicy(),
			Retryable: func(err error) bool {
				return errors.Is(err, ErrRateLimited)
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.runner.Logger = c.logger

	cache, err := ristretto.NewCache(&ristretto.Config[string, []Result]{
		NumCounters: 10_000,
		MaxCost:     1_000, // entries, not bytes
		BufferItems: 64,

		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// Close releases the cache.
func (c *Client) Close() {
	c.cache.Close()
}

// NormalizeQuery lowercases and collapses whitespace so equivalent queries share a cache entry.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Search runs query through the gate, retrying on ErrRateLimited. Exhausted
// retries surface as *retry.ExhaustedError wrapping ErrRateLimited.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	key := NormalizeQuery(query)
	if key == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if results, ok := c.cache.Get(key); ok {
		c.logger.Debug("search cache hit", "query", key)
		return results, nil
	}

	var results []Result
	op := fmt.Sprintf("search %q", query)
	err := c.runner.Do(ctx, op, func(ctx context.Context) error {
		if _, err := c.gate.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		items, err := c.backend.Query(callCtx, query, c.num)
		if err != nil {
			return err
		}
		results, err = c.normalize(items)
		return err
	})
	if err != nil {
		c.logger.Warn("search failed", "query", query, "error", err)
		return nil, err
	}

	c.cache.SetWithTTL(key, results, 1, c.ttl)
	c.cache.Wait()
	return results, nil
}

// normalize validates every item; any malformed item fails the whole answer closed.
func (c *Client) normalize(items []RawItem) ([]Result, error) {
	results := make([]Result, 0, len(items))
	for i, item := range items {
		r := Result{
			URL:     strings.TrimSpace(item.Link),
			Title:   strings.TrimSpace(item.Title),
			Snippet: strings.TrimSpace(item.Snippet),
		}
		if err := c.validate.Struct(r); err != nil {
			return nil, fmt.Errorf("%w: result %d failed schema check: %v", ErrSearchUnavailable, i, err)
		}
		results = append(results, r)
	}
	return results, nil
}
