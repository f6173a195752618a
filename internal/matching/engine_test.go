package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/startup-matcher/internal/embedding"
	"github.com/jonathan/startup-matcher/internal/types"
	"github.com/jonathan/startup-matcher/internal/vectorindex"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	down    bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.down {
		return nil, fmt.Errorf("%w: fake: connection refused", embedding.ErrEmbeddingUnavailable)
	}
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

type memStore struct {
	mu         sync.Mutex
	startups   map[string]string
	candidates map[string]*types.CandidateRecord
	matches    map[string]types.MatchRecord
}

func newMemStore() *memStore {
	return &memStore{
		startups:   make(map[string]string),
		candidates: make(map[string]*types.CandidateRecord),
		matches:    make(map[string]types.MatchRecord),
	}
}

func pairKey(email, startup string) string { return email + "|" + startup }

func (m *memStore) SetStartupVector(_ context.Context, name, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startups[name] = id
	return nil
}

func (m *memStore) SetCandidateVector(_ context.Context, email, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates[email].VectorID = id
	return nil
}

func (m *memStore) UpsertCandidate(_ context.Context, c *types.CandidateRecord) (*types.CandidateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *c
	stored.VectorID = ""
	m.candidates[c.Email] = &stored
	out := stored
	return &out, nil
}

func (m *memStore) ListEmbeddedCandidates(context.Context) ([]types.CandidateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.CandidateRecord
	for _, c := range m.candidates {
		if c.VectorID != "" {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) UpsertMatch(_ context.Context, r *types.MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches[pairKey(r.CandidateEmail, r.StartupName)] = *r
	return nil
}

func (m *memStore) DeleteMatch(_ context.Context, email, startup string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.matches, pairKey(email, startup))
	return nil
}

func (m *memStore) ListMatches(_ context.Context, email string) ([]types.MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.MatchRecord
	for _, r := range m.matches {
		if r.CandidateEmail == email {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func startupNames(matches []types.MatchRecord) []string {
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.StartupName)
	}
	return names
}

type fixture struct {
	engine   *Engine
	embedder *fakeEmbedder
	store    *memStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vs, err := vectorindex.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	emb := &fakeEmbedder{vectors: map[string][]float32{
		"Alpha":    {1, 0},
		"Beta":     {0.6, 0.8},
		"Gamma":    {0, 1},
		"backend":  {1, 0},
		"frontend": {0, 1},
		"mobile":   {0.8, 0.6},
	}}
	store := newMemStore()
	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e := New(emb, vs.Collection(vectorindex.Startups), vs.Collection(vectorindex.Candidates), store,
		WithClock(func() time.Time { return clock }))
	return &fixture{engine: e, embedder: emb, store: store}
}

func (f *fixture) embedStartups(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		id, err := f.engine.EmbedStartup(context.Background(), &types.StartupRecord{Name: n})
		require.NoError(t, err)
		assert.Equal(t, vectorindex.StartupID(n), id)
	}
}

func TestHandleUpload_MatchesAboveFloor(t *testing.T) {
	f := newFixture(t)
	f.embedStartups(t, "Alpha", "Beta", "Gamma")

	res, err := f.engine.HandleUpload(context.Background(), &types.CandidateRecord{Email: "ada@example.com", Summary: "backend"})
	require.NoError(t, err)

	assert.True(t, res.Embedded)
	assert.Equal(t, vectorindex.CandidateID("ada@example.com"), res.Candidate.VectorID)
	assert.Equal(t, []string{"Alpha", "Beta"}, startupNames(res.Matches), "Gamma is below the floor")
	assert.InDelta(t, 1.0, res.Matches[0].Score, 1e-6)
	assert.InDelta(t, 0.6, res.Matches[1].Score, 1e-6)
}

func TestHandleUpload_ReuploadReplacesStaleMatches(t *testing.T) {
	f := newFixture(t)
	f.embedStartups(t, "Alpha", "Beta", "Gamma")
	ctx := context.Background()

	_, err := f.engine.HandleUpload(ctx, &types.CandidateRecord{Email: "ada@example.com", Summary: "backend"})
	require.NoError(t, err)
	res, err := f.engine.HandleUpload(ctx, &types.CandidateRecord{Email: "ada@example.com", Summary: "frontend"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Gamma", "Beta"}, startupNames(res.Matches))
	stored, err := f.store.ListMatches(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"Gamma", "Beta"}, startupNames(stored), "the Alpha pair no longer qualifies")
}

func TestHandleUpload_EmbeddingUnavailable(t *testing.T) {
	f := newFixture(t)
	f.embedStartups(t, "Alpha")
	f.embedder.down = true

	res, err := f.engine.HandleUpload(context.Background(), &types.CandidateRecord{Email: "ada@example.com", Summary: "backend"})
	require.NoError(t, err)
	assert.False(t, res.Embedded)
	assert.Empty(t, res.Matches)
	assert.Empty(t, f.store.candidates["ada@example.com"].VectorID)
}

func TestEmbedStartup_RefreshesExistingCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.HandleUpload(ctx, &types.CandidateRecord{Email: "ada@example.com", Summary: "mobile"})
	require.NoError(t, err)

	f.embedStartups(t, "Alpha", "Gamma")

	stored, err := f.store.ListMatches(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "Alpha", stored[0].StartupName)
	assert.InDelta(t, 0.8, stored[0].Score, 1e-6)
	assert.InDelta(t, 0.6, stored[1].Score, 1e-6)
}

func TestEmbedStartup_Unavailable(t *testing.T) {
	f := newFixture(t)
	f.embedder.down = true

	rec := &types.StartupRecord{Name: "Alpha"}
	_, err := f.engine.EmbedStartup(context.Background(), rec)
	assert.ErrorIs(t, err, embedding.ErrEmbeddingUnavailable)
	assert.Empty(t, rec.VectorID)
	assert.Empty(t, f.store.startups)
}

func TestMatch_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.embedStartups(t, "Alpha", "Beta", "Gamma")
	ctx := context.Background()

	first, err := f.engine.Match(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	second, err := f.engine.Match(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, "Alpha", first[0].StartupName)
}

func TestMatchText(t *testing.T) {
	f := newFixture(t)
	f.embedStartups(t, "Alpha", "Beta", "Gamma")

	got, err := f.engine.MatchText(context.Background(), "frontend", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Gamma", got[0].StartupName)
	assert.Equal(t, vectorindex.StartupID("Gamma"), got[0].StartupID)
}
