// Package embedding turns startup and candidate text into normalized vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultTimeout bounds one embedding request.
const DefaultTimeout = 20 * time.Second

// ErrEmbeddingUnavailable is returned when the upstream embedding service
// cannot produce a vector. Callers treat it as non-fatal and backfill later.
var ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

// Embedder produces a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// unavailable wraps an upstream failure so it matches ErrEmbeddingUnavailable.
func unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrEmbeddingUnavailable, provider, err)
}

// prepare rejects empty input before it reaches the provider.
func prepare(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("cannot embed empty text")
	}
	return text, nil
}

// Normalize scales v to unit length. Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
