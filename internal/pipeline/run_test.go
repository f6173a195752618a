package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/startup-matcher/internal/db"
	"github.com/jonathan/startup-matcher/internal/discovery"
	"github.com/jonathan/startup-matcher/internal/embedding"
	"github.com/jonathan/startup-matcher/internal/quality"
	"github.com/jonathan/startup-matcher/internal/types"
)

var errStoreDown = errors.New("connection refused")

type fakeStore struct {
	mu         sync.Mutex
	startups   map[string]*types.StartupRecord
	candidates []types.CandidateRecord
	writes     int
	saveErr    error
	stale      []string
	resets     map[string]int
}

func newFakeStore(recs ...types.StartupRecord) *fakeStore {
	s := &fakeStore{startups: make(map[string]*types.StartupRecord), resets: make(map[string]int)}
	for i := range recs {
		r := recs[i]
		s.startups[r.Name] = &r
	}
	return s
}

func (s *fakeStore) get(name string) types.StartupRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.startups[name]
}

func (s *fakeStore) GetStartup(_ context.Context, name string) (*types.StartupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.startups[name]
	if !ok {
		return nil, nil
	}
	out := *r
	return &out, nil
}

func (s *fakeStore) ListPending(_ context.Context, limit int) ([]types.StartupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.StartupRecord
	for _, r := range s.startups {
		if r.EnrichmentStatus == types.EnrichmentPending && len(out) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkInProgress(_ context.Context, name string, from types.EnrichmentStatus, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	r := s.startups[name]
	if r.EnrichmentStatus != from {
		return false, nil
	}
	r.EnrichmentStatus = types.EnrichmentInProgress
	r.EnrichmentStartedAt = &startedAt
	return true, nil
}

func (s *fakeStore) SaveEnrichment(_ context.Context, rec *types.StartupRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.saveErr != nil {
		return false, s.saveErr
	}
	cur := s.startups[rec.Name]
	if cur.QualityScore > rec.QualityScore {
		cur.EnrichmentStatus = types.EnrichmentCompleted
		cur.EnrichmentStartedAt = nil
		return false, nil
	}
	out := *rec
	s.startups[rec.Name] = &out
	return true, nil
}

func (s *fakeStore) ReleaseStartup(_ context.Context, rec *types.StartupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	out := *rec
	s.startups[rec.Name] = &out
	return nil
}

func (s *fakeStore) RecoverStale(context.Context, time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.stale {
		s.startups[name].EnrichmentStatus = types.EnrichmentPending
	}
	return s.stale, nil
}

func (s *fakeStore) ListRetryCandidates(_ context.Context, _ db.RetryFilter) ([]types.StartupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.StartupRecord
	for _, r := range s.startups {
		if r.EnrichmentStatus == types.EnrichmentFailed || r.EnrichmentStatus == types.EnrichmentNeedsReview {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) ResetForRetry(_ context.Context, name string, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[name] = retryCount
	s.startups[name].EnrichmentStatus = types.EnrichmentPending
	s.startups[name].RetryCount = retryCount
	return nil
}

func (s *fakeStore) ListStartupsWithoutVector(_ context.Context, _ int) ([]types.StartupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.StartupRecord
	for _, r := range s.startups {
		if r.VectorID == "" {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) ListCandidatesWithoutVector(context.Context, int) ([]types.CandidateRecord, error) {
	return s.candidates, nil
}

type fakeDiscoverer struct {
	results map[string]*discovery.Result
	calls   atomic.Int32
	during  func()
}

func (f *fakeDiscoverer) Discover(_ context.Context, rec *types.StartupRecord) *discovery.Result {
	f.calls.Add(1)
	if f.during != nil {
		f.during()
	}
	if res, ok := f.results[rec.Name]; ok {
		return res
	}
	return &discovery.Result{Attempts: []discovery.Attempt{
		{Tier: discovery.TierSiteSearch},
		{Tier: discovery.TierNetworkSearch},
		{Tier: discovery.TierPattern, Err: discovery.ErrNoVerifier},
	}}
}

type fakeEmbedder struct {
	err      error
	startups atomic.Int32
}

func (f *fakeEmbedder) EmbedStartup(_ context.Context, rec *types.StartupRecord) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.startups.Add(1)
	return "vec-" + rec.Name, nil
}

func (f *fakeEmbedder) EmbedCandidate(_ context.Context, c *types.CandidateRecord) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) MatchCandidate(_ context.Context, email string, _ []float32) ([]types.MatchRecord, error) {
	return []types.MatchRecord{{CandidateEmail: email, StartupName: "Revolut", Score: 0.9}}, nil
}

func pending(name string) types.StartupRecord {
	return types.StartupRecord{
		Name:             name,
		Website:          "https://" + name + ".com",
		NeedsEnrichment:  true,
		EnrichmentStatus: types.EnrichmentPending,
	}
}

func accepted() *discovery.Result {
	return &discovery.Result{
		Names:      []string{"Vlad Yatsenko"},
		Emails:     []string{"vladimir@revolut.com"},
		Accepted:   true,
		Confidence: 0.7,
		Attempts:   []discovery.Attempt{{Tier: discovery.TierSiteSearch, Accepted: true}},
	}
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRunner(store Store, d Discoverer, opts ...Option) *Runner {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewRunner(store, d, opts...)
}

func TestRun_CompletedWithoutForceIsNoop(t *testing.T) {
	rec := pending("revolut")
	rec.EnrichmentStatus = types.EnrichmentCompleted
	rec.QualityScore = 0.9
	rec.QualityStatus = types.QualityExcellent
	store := newFakeStore(rec)
	d := &fakeDiscoverer{}

	sum, err := newTestRunner(store, d).Run(context.Background(), RunOptions{Names: []string{"revolut"}})
	require.NoError(t, err)

	assert.Zero(t, d.calls.Load(), "no search or fetch")
	assert.Zero(t, store.writes, "no store writes")
	require.Len(t, sum.Reports, 1)
	assert.Equal(t, OutcomeSkipped, sum.Reports[0].Outcome)
	assert.Equal(t, rec, store.get("revolut"))
}

func TestRun_AcceptedPassCompletes(t *testing.T) {
	store := newFakeStore(pending("revolut"))
	d := &fakeDiscoverer{results: map[string]*discovery.Result{"revolut": accepted()}}
	emb := &fakeEmbedder{}

	sum, err := newTestRunner(store, d, WithEmbedder(emb)).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	got := store.get("revolut")
	assert.Equal(t, types.EnrichmentCompleted, got.EnrichmentStatus)
	assert.False(t, got.NeedsEnrichment)
	assert.Equal(t, []string{"vladimir@revolut.com"}, got.FounderEmails)
	assert.Equal(t, quality.Bucket(got.QualityScore), got.QualityStatus)
	assert.Nil(t, got.EnrichmentStartedAt)
	assert.Equal(t, 1, sum.Counts[OutcomeCompleted])
	assert.True(t, sum.Reports[0].Embedded)
	assert.Equal(t, []string{"site_search"}, sum.Reports[0].Tiers)
	assert.EqualValues(t, 1, emb.startups.Load())
}

func TestRun_AllTiersFailStoresZeroScore(t *testing.T) {
	store := newFakeStore(pending("acme"))

	sum, err := newTestRunner(store, &fakeDiscoverer{}).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	got := store.get("acme")
	assert.Equal(t, types.EnrichmentFailed, got.EnrichmentStatus)
	assert.Zero(t, got.QualityScore)
	assert.Equal(t, types.QualityFailed, got.QualityStatus)
	assert.True(t, got.NeedsEnrichment)
	require.Len(t, sum.Reports, 1)
	assert.Equal(t, OutcomeFailed, sum.Reports[0].Outcome)
	assert.Contains(t, sum.Reports[0].Reason, "pattern")
}

func TestRun_PlaceholderAcceptanceNeedsReview(t *testing.T) {
	store := newFakeStore(pending("acme"))
	d := &fakeDiscoverer{results: map[string]*discovery.Result{"acme": {
		Names: []string{"Team Acme"}, Emails: []string{"hello@acme.com"}, Accepted: true, Confidence: 0.5,
	}}}

	sum, err := newTestRunner(store, d).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	got := store.get("acme")
	assert.Equal(t, types.EnrichmentNeedsReview, got.EnrichmentStatus)
	assert.Equal(t, types.QualityPoor, got.QualityStatus)
	assert.Equal(t, 1, sum.Counts[OutcomeNeedsReview])
}

func TestRun_EmbeddingUnavailableIsNotFatal(t *testing.T) {
	store := newFakeStore(pending("revolut"))
	d := &fakeDiscoverer{results: map[string]*discovery.Result{"revolut": accepted()}}
	emb := &fakeEmbedder{err: fmt.Errorf("%w: gemini: 503", embedding.ErrEmbeddingUnavailable)}

	sum, err := newTestRunner(store, d, WithEmbedder(emb)).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, sum.Reports[0].Outcome)
	assert.False(t, sum.Reports[0].Embedded)
	assert.Empty(t, store.get("revolut").VectorID)
}

func TestRun_CancelledPassReturnsToPendingWithPartialData(t *testing.T) {
	store := newFakeStore(pending("revolut"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := &fakeDiscoverer{
		results: map[string]*discovery.Result{"revolut": {Names: []string{"Vlad Yatsenko"}}},
		during:  cancel,
	}

	sum, err := newTestRunner(store, d).Run(ctx, RunOptions{})
	require.NoError(t, err)

	got := store.get("revolut")
	assert.Equal(t, types.EnrichmentPending, got.EnrichmentStatus)
	assert.Equal(t, []string{"Vlad Yatsenko"}, got.FounderNames)
	assert.Nil(t, got.EnrichmentStartedAt)
	assert.Equal(t, 1, sum.Counts[OutcomeInterrupted])
}

func TestRun_StoreOutageIsFatal(t *testing.T) {
	store := newFakeStore(pending("revolut"))
	store.saveErr = errStoreDown

	_, err := newTestRunner(store, &fakeDiscoverer{}, WithWorkers(1)).Run(context.Background(), RunOptions{})

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, []string{"revolut"}, fatal.InFlight)
}

func TestRun_RecoversStaleFirst(t *testing.T) {
	rec := pending("revolut")
	rec.EnrichmentStatus = types.EnrichmentInProgress
	store := newFakeStore(rec)
	store.stale = []string{"revolut"}
	d := &fakeDiscoverer{results: map[string]*discovery.Result{"revolut": accepted()}}

	sum, err := newTestRunner(store, d).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"revolut"}, sum.Recovered)
	assert.Equal(t, types.EnrichmentCompleted, store.get("revolut").EnrichmentStatus)
}

func TestRun_ProcessesEveryPendingStartup(t *testing.T) {
	var recs []types.StartupRecord
	results := make(map[string]*discovery.Result)
	for i := range 20 {
		name := fmt.Sprintf("startup-%02d", i)
		recs = append(recs, pending(name))
		if i%2 == 0 {
			results[name] = accepted()
		}
	}
	store := newFakeStore(recs...)
	d := &fakeDiscoverer{results: results}

	var events atomic.Int32
	sum, err := newTestRunner(store, d, WithWorkers(4), WithProgress(func(ProgressEvent) { events.Add(1) })).
		Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Len(t, sum.Reports, 20)
	assert.Equal(t, 10, sum.Counts[OutcomeCompleted])
	assert.Equal(t, 10, sum.Counts[OutcomeFailed])
	assert.EqualValues(t, 20, d.calls.Load())
	assert.EqualValues(t, 22, events.Load(), "start, one per startup, done")
	assert.Equal(t, "startup-00", sum.Reports[0].Name)
}

func TestEnrichOne_KeepsBetterStoredData(t *testing.T) {
	rec := pending("revolut")
	rec.EnrichmentStatus = types.EnrichmentCompleted
	rec.QualityScore = 0.95
	rec.QualityStatus = types.QualityExcellent
	store := newFakeStore(rec)

	rep, err := newTestRunner(store, &fakeDiscoverer{}).EnrichOne(context.Background(), &rec, true)
	require.NoError(t, err)
	assert.True(t, rep.Kept)
	got := store.get("revolut")
	assert.Equal(t, types.EnrichmentCompleted, got.EnrichmentStatus)
	assert.InDelta(t, 0.95, got.QualityScore, 1e-9)
}

func TestRetry(t *testing.T) {
	failed := pending("acme")
	failed.EnrichmentStatus = types.EnrichmentFailed
	failed.QualityStatus = types.QualityFailed
	exhausted := pending("globex")
	exhausted.EnrichmentStatus = types.EnrichmentFailed
	exhausted.RetryCount = 3
	store := newFakeStore(failed, exhausted)

	res, err := newTestRunner(store, &fakeDiscoverer{}).Retry(context.Background(), RetryOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"acme"}, res.Reset)
	assert.Equal(t, []string{"globex"}, res.Exhausted)
	assert.Equal(t, 1, store.resets["acme"])
	assert.Equal(t, types.EnrichmentPending, store.get("acme").EnrichmentStatus)
}

func TestBackfill(t *testing.T) {
	done := pending("revolut")
	done.EnrichmentStatus = types.EnrichmentCompleted
	store := newFakeStore(done)
	store.candidates = []types.CandidateRecord{{Email: "ada@example.com", Summary: "backend"}}
	emb := &fakeEmbedder{}

	res, err := newTestRunner(store, &fakeDiscoverer{}, WithEmbedder(emb)).Backfill(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, &BackfillResult{Startups: 1, Candidates: 1, Matches: 1}, res)
}

func TestBackfill_StopsWhenEmbeddingIsDown(t *testing.T) {
	store := newFakeStore(pending("revolut"))
	emb := &fakeEmbedder{err: fmt.Errorf("%w: down", embedding.ErrEmbeddingUnavailable)}

	_, err := newTestRunner(store, &fakeDiscoverer{}, WithEmbedder(emb)).Backfill(context.Background(), 10)
	assert.ErrorIs(t, err, embedding.ErrEmbeddingUnavailable)
}

func TestFatalError(t *testing.T) {
	err := &FatalError{InFlight: []string{"a", "b"}, Err: errStoreDown}
	assert.Contains(t, err.Error(), "2 startups in flight")
	assert.ErrorIs(t, err, errStoreDown)
}
