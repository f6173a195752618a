package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleBackend queries Google Programmable Search.
type GoogleBackend struct {
	svc *customsearch.Service
	cx  string
}

// NewGoogleBackend creates a backend for the given API key and engine id.
func NewGoogleBackend(ctx context.Context, apiKey, cx string) (*GoogleBackend, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("search API key and engine id are required")
	}
	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &GoogleBackend{svc: svc, cx: cx}, nil
}

// Query runs one search request.
func (b *GoogleBackend) Query(ctx context.Context, query string, num int) ([]RawItem, error) {
	call := b.svc.Cse.List().Cx(b.cx).Q(query).Context(ctx)
	if num > 0 {
		call = call.Num(int64(min(num, 10)))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}

	items := make([]RawItem, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil {
			continue
		}
		items = append(items, RawItem{
			Link:    item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
		})
	}
	return items, nil
}

// classifyGoogleError maps quota and throttling responses to ErrRateLimited.
func classifyGoogleError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		if gerr.Code == http.StatusForbidden {
			for _, item := range gerr.Errors {
				switch item.Reason {
				case "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded", "quotaExceeded":
					return fmt.Errorf("%w: %v", ErrRateLimited, err)
				}
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
}
