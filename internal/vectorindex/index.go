// Package vectorindex stores embeddings by id and answers nearest-neighbour
// queries over them.
package vectorindex

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("vector not found")
	// ErrDimensionMismatch is returned when a vector's length differs from the index's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Collections
const (
	Startups   = "startups"
	Candidates = "candidates"
)

// Metadata is stored next to a vector.
type Metadata struct {
	UpdatedAt time.Time         `json:"updated_at"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Entry is a stored vector with its metadata.
type Entry struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"vector"`
	Metadata Metadata  `json:"metadata"`
}

// Hit is one query result.
type Hit struct {
	ID        string
	Score     float64
	UpdatedAt time.Time
	Attrs     map[string]string
}

// Index is a vector collection. Upsert is idempotent: writing an id again
// replaces its vector and metadata.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, meta Metadata) error
	Get(ctx context.Context, id string) (*Entry, error)
	// Query returns at most k hits ordered by Rank.
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Len(ctx context.Context) (int, error)
}

// Rank sorts hits by score descending, then most recent UpdatedAt, then id,
// and keeps at most k. The order is deterministic for equal inputs.
func Rank(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// StartupID is the vector id of a startup. It is stable across runs.
func StartupID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("startup:"+strings.ToLower(strings.TrimSpace(name)))).String()
}

// CandidateID is the vector id of a candidate.
func CandidateID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("candidate:"+strings.ToLower(strings.TrimSpace(email)))).String()
}
