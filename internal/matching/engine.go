// Package matching embeds startups and candidates into one vector space and
// keeps the candidate/startup match scores up to date.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/startup-matcher/internal/embedding"
	"github.com/jonathan/startup-matcher/internal/types"
	"github.com/jonathan/startup-matcher/internal/vectorindex"
)

// Defaults
const (
	DefaultFloor = 0.35
	DefaultTopK  = 10
)

// Attribute keys stored next to vectors.
const (
	AttrName  = "name"
	AttrEmail = "email"
)

// Store is the record storage the engine writes to.
type Store interface {
	SetStartupVector(ctx context.Context, name, vectorID string) error
	SetCandidateVector(ctx context.Context, email, vectorID string) error
	UpsertCandidate(ctx context.Context, c *types.CandidateRecord) (*types.CandidateRecord, error)
	ListEmbeddedCandidates(ctx context.Context) ([]types.CandidateRecord, error)
	UpsertMatch(ctx context.Context, m *types.MatchRecord) error
	DeleteMatch(ctx context.Context, candidateEmail, startupName string) error
	ListMatches(ctx context.Context, candidateEmail string) ([]types.MatchRecord, error)
}

// Scored is one startup returned by Match.
type Scored struct {
	StartupID   string  `json:"startup_id"`
	StartupName string  `json:"startup_name"`
	Score       float64 `json:"score"`
}

// UploadResult is the outcome of processing one candidate upload.
type UploadResult struct {
	Candidate *types.CandidateRecord `json:"candidate"`
	// Embedded is false when the embedding service was unavailable; the
	// candidate is stored and picked up by a later backfill.
	Embedded bool                `json:"embedded"`
	Matches  []types.MatchRecord `json:"matches"`
}

// Engine computes embeddings and matches.
type Engine struct {
	embedder   embedding.Embedder
	startups   vectorindex.Index
	candidates vectorindex.Index
	store      Store
	floor      float64
	topK       int
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithFloor sets the score a pair must exceed to be stored.
func WithFloor(f float64) Option {
	return func(e *Engine) { e.floor = f }
}

// WithTopK sets how many startups a candidate is matched against.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine.
func New(embedder embedding.Embedder, startups, candidates vectorindex.Index, store Store, opts ...Option) *Engine {
	e := &Engine{
		embedder:   embedder,
		startups:   startups,
		candidates: candidates,
		store:      store,
		floor:      DefaultFloor,
		topK:       DefaultTopK,
		now:        time.Now,
		logger:     slog.Default().With("component", "matching"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmbedStartup embeds rec, stores its vector, records the reference and
// refreshes the matches of every embedded candidate against it.
func (e *Engine) EmbedStartup(ctx context.Context, rec *types.StartupRecord) (string, error) {
	vec, err := e.embedder.Embed(ctx, rec.EmbeddingText())
	if err != nil {
		return "", fmt.Errorf("failed to embed startup %s: %w", rec.Name, err)
	}

	id := vectorindex.StartupID(rec.Name)
	meta := vectorindex.Metadata{UpdatedAt: e.now(), Attrs: map[string]string{AttrName: rec.Name}}
	if err := e.startups.Upsert(ctx, id, vec, meta); err != nil {
		return "", fmt.Errorf("failed to store startup vector: %w", err)
	}
	if err := e.store.SetStartupVector(ctx, rec.Name, id); err != nil {
		return "", err
	}
	rec.VectorID = id

	if err := e.RefreshStartup(ctx, rec.Name, vec); err != nil {
		return id, err
	}
	return id, nil
}

// EmbedCandidate embeds c and stores its vector and reference.
func (e *Engine) EmbedCandidate(ctx context.Context, c *types.CandidateRecord) ([]float32, error) {
	vec, err := e.embedder.Embed(ctx, c.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("failed to embed candidate %s: %w", c.Email, err)
	}

	id := vectorindex.CandidateID(c.Email)
	meta := vectorindex.Metadata{UpdatedAt: e.now(), Attrs: map[string]string{AttrEmail: c.Email}}
	if err := e.candidates.Upsert(ctx, id, vec, meta); err != nil {
		return nil, fmt.Errorf("failed to store candidate vector: %w", err)
	}
	if err := e.store.SetCandidateVector(ctx, c.Email, id); err != nil {
		return nil, err
	}
	c.VectorID = id
	return vec, nil
}

// Match returns the k startups closest to vector, best first.
func (e *Engine) Match(ctx context.Context, vector []float32, k int) ([]Scored, error) {
	hits, err := e.startups.Query(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query startups: %w", err)
	}
	out := make([]Scored, 0, len(hits))
	for _, h := range hits {
		out = append(out, Scored{StartupID: h.ID, StartupName: h.Attrs[AttrName], Score: h.Score})
	}
	return out, nil
}

// MatchText embeds free text and returns the k closest startups.
func (e *Engine) MatchText(ctx context.Context, text string, k int) ([]Scored, error) {
	if k <= 0 {
		k = e.topK
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return e.Match(ctx, vec, k)
}

// MatchCandidate recomputes a candidate's matches. Pairs scoring above the
// floor are written; earlier pairs that no longer qualify are removed.
func (e *Engine) MatchCandidate(ctx context.Context, email string, vector []float32) ([]types.MatchRecord, error) {
	scored, err := e.Match(ctx, vector, e.topK)
	if err != nil {
		return nil, err
	}
	previous, err := e.store.ListMatches(ctx, email)
	if err != nil {
		return nil, err
	}

	computedAt := e.now()
	kept := make(map[string]bool)
	var out []types.MatchRecord
	for _, s := range scored {
		if s.Score <= e.floor || s.StartupName == "" {
			continue
		}
		m := types.MatchRecord{CandidateEmail: email, StartupName: s.StartupName, Score: s.Score, ComputedAt: computedAt}
		if err := e.store.UpsertMatch(ctx, &m); err != nil {
			return nil, err
		}
		kept[s.StartupName] = true
		out = append(out, m)
	}
	for _, p := range previous {
		if kept[p.StartupName] {
			continue
		}
		if err := e.store.DeleteMatch(ctx, email, p.StartupName); err != nil {
			return nil, err
		}
	}

	e.logger.Debug("candidate matched", "email", email, "matches", len(out))
	return out, nil
}

// RefreshStartup rescores one startup against every embedded candidate.
func (e *Engine) RefreshStartup(ctx context.Context, name string, vector []float32) error {
	candidates, err := e.store.ListEmbeddedCandidates(ctx)
	if err != nil {
		return err
	}

	computedAt := e.now()
	for _, c := range candidates {
		entry, err := e.candidates.Get(ctx, vectorindex.CandidateID(c.Email))
		if errors.Is(err, vectorindex.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load candidate vector: %w", err)
		}
		if len(entry.Vector) != len(vector) {
			e.logger.Warn("skipping candidate with mismatched vector", "email", c.Email)
			continue
		}

		score := embedding.Cosine(vector, entry.Vector)
		if score > e.floor {
			err = e.store.UpsertMatch(ctx, &types.MatchRecord{
				CandidateEmail: c.Email, StartupName: name, Score: score, ComputedAt: computedAt,
			})
		} else {
			err = e.store.DeleteMatch(ctx, c.Email, name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// HandleUpload stores a candidate, embeds it and computes its matches. An
// unavailable embedding service leaves the candidate stored without a vector.
func (e *Engine) HandleUpload(ctx context.Context, c *types.CandidateRecord) (*UploadResult, error) {
	stored, err := e.store.UpsertCandidate(ctx, c)
	if err != nil {
		return nil, err
	}
	res := &UploadResult{Candidate: stored}

	vec, err := e.EmbedCandidate(ctx, stored)
	if errors.Is(err, embedding.ErrEmbeddingUnavailable) {
		e.logger.Warn("candidate stored without vector", "email", stored.Email, "error", err)
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	res.Embedded = true

	res.Matches, err = e.MatchCandidate(ctx, stored.Email, vec)
	if err != nil {
		return nil, err
	}
	return res, nil
}
