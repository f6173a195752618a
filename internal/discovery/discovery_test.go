package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/startup-matcher/internal/extract"
	"github.com/jonathan/startup-matcher/internal/fetch"
	"github.com/jonathan/startup-matcher/internal/llm"
	"github.com/jonathan/startup-matcher/internal/search"
	"github.com/jonathan/startup-matcher/internal/types"
	"github.com/jonathan/startup-matcher/internal/verify"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]search.Result
	errs    map[string]error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]search.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	urls  []string
}

func (f *fakeFetcher) FetchText(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	text, ok := f.pages[url]
	if !ok {
		return "", &fetch.Error{URL: url, Message: "status 404", StatusCode: 404}
	}
	return text, nil
}

type fakeVerifier struct {
	valid map[string]bool
	calls []string
}

func (f *fakeVerifier) Verify(_ context.Context, email string) error {
	f.calls = append(f.calls, email)
	if f.valid[email] {
		return nil
	}
	return verify.ErrValidationFailed
}

type fakeReader struct {
	founders *llm.Founders
	err      error
}

func (f *fakeReader) Extract(context.Context, string, string) (*llm.Founders, error) {
	return f.founders, f.err
}

func revolut() *types.StartupRecord {
	return &types.StartupRecord{Name: "Revolut", Website: "https://www.revolut.com"}
}

func TestDiscover_SiteSearchAcceptsAndStops(t *testing.T) {
	s := &fakeSearcher{results: map[string][]search.Result{
		SiteQuery("revolut.com"): {
			{URL: "https://www.revolut.com/careers/", Title: "Careers", Snippet: "Join us"},
			{URL: "https://www.revolut.com/about", Title: "About Revolut", Snippet: "Our story"},
		},
	}}
	f := &fakeFetcher{pages: map[string]string{
		"https://www.revolut.com/about": "Revolut was founded by Nik Storonsky and Vlad Yatsenko in 2015. " +
			"Vlad Yatsenko, Co-founder & CTO. Reach Vlad at vladimir@revolut.com.",
	}}
	v := &fakeVerifier{}

	res := New(s, f, WithVerifier(v)).Discover(context.Background(), revolut())

	require.True(t, res.Accepted)
	assert.Equal(t, []Tier{TierSiteSearch}, res.Escalations())
	assert.Equal(t, []string{SiteQuery("revolut.com")}, s.queries, "no network search after acceptance")
	assert.Empty(t, v.calls)
	assert.Contains(t, res.Emails, "vladimir@revolut.com")
	assert.Contains(t, res.Names, "Vlad Yatsenko")
	assert.Contains(t, res.Names, "Nik Storonsky")
	assert.Equal(t, []string{"https://www.revolut.com/about"}, f.urls, "low-priority pages are not fetched")
	assert.Greater(t, res.Confidence, 0.0)
}

func TestDiscover_AllTiersFail(t *testing.T) {
	s := &fakeSearcher{}
	f := &fakeFetcher{}

	res := New(s, f).Discover(context.Background(), &types.StartupRecord{Name: "Acme Robotics", Website: "acme.io"})

	assert.False(t, res.Accepted)
	assert.Zero(t, res.Confidence)
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, []Tier{TierSiteSearch, TierNetworkSearch, TierPattern}, res.Escalations())
	assert.ErrorIs(t, res.Attempts[0].Err, fetch.ErrFetchFailed)
	assert.ErrorIs(t, res.Attempts[2].Err, ErrNoVerifier)
	assert.ElementsMatch(t, []string{
		"https://acme.io/about", "https://acme.io/team", "https://acme.io/company",
	}, f.urls, "well-known pages are tried when search finds nothing")
}

func TestDiscover_SearchOutageStillEscalates(t *testing.T) {
	s := &fakeSearcher{errs: map[string]error{
		SiteQuery("revolut.com"): search.ErrSearchUnavailable,
		NetworkQuery("Revolut"):  search.ErrRateLimited,
	}}

	res := New(s, &fakeFetcher{}).Discover(context.Background(), revolut())

	require.Len(t, res.Attempts, 3)
	assert.ErrorIs(t, res.Attempts[0].Err, search.ErrSearchUnavailable)
	assert.ErrorIs(t, res.Attempts[1].Err, search.ErrRateLimited)
	assert.False(t, res.Accepted)
}

func TestDiscover_CancelledIssuesNoSearches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeSearcher{}

	res := New(s, &fakeFetcher{}).Discover(ctx, revolut())

	assert.Empty(t, s.queries)
	assert.Empty(t, res.Attempts)
	assert.False(t, res.Accepted)
}

func TestDiscover_PatternVerificationOrder(t *testing.T) {
	s := &fakeSearcher{results: map[string][]search.Result{
		NetworkQuery("Revolut"): {{
			URL:     "https://uk.linkedin.com/in/VladYatsenko",
			Title:   "Vlad Yatsenko - Co-founder & CTO - Revolut | LinkedIn",
			Snippet: "Co-founder at Revolut",
		}},
	}}
	v := &fakeVerifier{valid: map[string]bool{"v.yatsenko@revolut.com": true}}

	res := New(s, &fakeFetcher{}, WithVerifier(v)).Discover(context.Background(), revolut())

	require.True(t, res.Accepted)
	assert.Equal(t, []Tier{TierSiteSearch, TierNetworkSearch, TierPattern}, res.Escalations())
	assert.Equal(t, []string{
		"vlad@revolut.com",
		"vlad.yatsenko@revolut.com",
		"v.yatsenko@revolut.com",
	}, v.calls)
	assert.Equal(t, []string{"v.yatsenko@revolut.com"}, res.Emails)
	assert.Equal(t, []string{"https://www.linkedin.com/in/vladyatsenko"}, res.LinkedIns)
}

func TestDiscover_PatternWithoutVerifierNeverGuesses(t *testing.T) {
	rec := revolut()
	rec.FounderNames = []string{"Vlad Yatsenko"}

	res := New(&fakeSearcher{}, &fakeFetcher{}).Discover(context.Background(), rec)

	assert.False(t, res.Accepted)
	assert.Empty(t, res.Emails)
	assert.Equal(t, []string{"Vlad Yatsenko"}, res.Names)
	assert.ErrorIs(t, res.Attempts[len(res.Attempts)-1].Err, ErrNoVerifier)
}

func TestDiscover_NoDomain(t *testing.T) {
	s := &fakeSearcher{}
	res := New(s, &fakeFetcher{}, WithVerifier(&fakeVerifier{})).
		Discover(context.Background(), &types.StartupRecord{Name: "Stealth Co"})

	require.Len(t, res.Attempts, 3)
	assert.ErrorIs(t, res.Attempts[0].Err, ErrNoDomain)
	assert.ErrorIs(t, res.Attempts[2].Err, ErrNoDomain)
	assert.Equal(t, []string{NetworkQuery("Stealth Co")}, s.queries)
}

func TestDiscover_ModelEmailsMustAppearInPage(t *testing.T) {
	s := &fakeSearcher{results: map[string][]search.Result{
		SiteQuery("acme.io"): {{URL: "https://acme.io/people", Title: "People", Snippet: "The people"}},
	}}
	f := &fakeFetcher{pages: map[string]string{
		"https://acme.io/people": "Ada Lovelace leads the engineering group. Write to ada@acme.io.",
	}}
	reader := &fakeReader{founders: &llm.Founders{
		Founders: []llm.Founder{
			{Name: "Ada Lovelace", Email: "ada@acme.io"},
			{Name: "Grace Hopper", Email: "grace@acme.io"},
		},
		FundingStage: "Seed",
	}}

	res := New(s, f, WithFounderReader(reader)).
		Discover(context.Background(), &types.StartupRecord{Name: "Acme", Website: "acme.io"})

	require.True(t, res.Accepted)
	assert.Equal(t, []string{"ada@acme.io"}, res.Emails)
	require.NotNil(t, res.Funding)
	assert.Equal(t, "Seed", res.Funding.Stage)
}

func TestDiscover_ModelFailureIsNotFatal(t *testing.T) {
	s := &fakeSearcher{results: map[string][]search.Result{
		SiteQuery("acme.io"): {{URL: "https://acme.io/team", Title: "Team"}},
	}}
	f := &fakeFetcher{pages: map[string]string{"https://acme.io/team": "Our team."}}

	res := New(s, f, WithFounderReader(&fakeReader{err: errors.New("quota")})).
		Discover(context.Background(), &types.StartupRecord{Name: "Acme", Website: "acme.io"})

	assert.False(t, res.Accepted)
	require.NotEmpty(t, res.Attempts)
	assert.NoError(t, res.Attempts[0].Err)
	assert.Equal(t, []string{"https://acme.io/team"}, res.Attempts[0].Pages)
}

func TestDiscover_FundingFromSnippets(t *testing.T) {
	s := &fakeSearcher{results: map[string][]search.Result{
		SiteQuery("acme.io"): {{
			URL:     "https://acme.io/blog/news",
			Title:   "Acme news",
			Snippet: "Acme raised $4 million in a seed round led by Example Ventures.",
		}},
	}}

	res := New(s, &fakeFetcher{}).
		Discover(context.Background(), &types.StartupRecord{Name: "Acme", Website: "acme.io"})

	require.NotNil(t, res.Funding)
	assert.Equal(t, "Seed", res.Funding.Stage)
	assert.Equal(t, "$4 million", res.Funding.Amount)
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "site_search", TierSiteSearch.String())
	assert.Equal(t, "network_search", TierNetworkSearch.String())
	assert.Equal(t, "pattern", TierPattern.String())
	assert.Equal(t, "tier_9", Tier(9).String())
}

func TestEntitiesKeepSources(t *testing.T) {
	rec := revolut()
	rec.FounderNames = []string{"Vlad Yatsenko", "not a name"}

	res := New(&fakeSearcher{}, &fakeFetcher{}).Discover(context.Background(), rec)

	names := extract.OfKind(res.Entities, extract.KindName)
	require.Len(t, names, 1)
	assert.Equal(t, []string{"record"}, names[0].Sources)
}

func TestDiscover_SourceContentAloneAccepts(t *testing.T) {
	s := &fakeSearcher{}
	f := &fakeFetcher{}
	rec := revolut()
	rec.SourceContent = "Revolut was founded by Nik Storonsky, CEO. Contact nik@revolut.com. Revolut raised $4 million in a seed round."

	res := New(s, f).Discover(context.Background(), rec)

	require.True(t, res.Accepted)
	assert.Equal(t, []Tier{TierSiteSearch}, res.Escalations())
	assert.Equal(t, []string{"Nik Storonsky"}, res.Names)
	assert.Equal(t, []string{"nik@revolut.com"}, res.Emails)
	require.NotNil(t, res.Funding)
	assert.Empty(t, s.queries, "no search once the stored article is enough")
	assert.Empty(t, f.urls)
}

func TestDiscover_SourcePageIsRead(t *testing.T) {
	s := &fakeSearcher{}
	f := &fakeFetcher{pages: map[string]string{
		"https://www.ycombinator.com/companies/revolut": "Active Founders\nVlad Yatsenko, Co-founder & CTO. vladimir@revolut.com",
	}}
	rec := revolut()
	rec.SourceURL = "https://www.ycombinator.com/companies/revolut"

	res := New(s, f).Discover(context.Background(), rec)

	require.True(t, res.Accepted)
	assert.Equal(t, []string{rec.SourceURL}, f.urls)
	assert.Equal(t, []string{rec.SourceURL}, res.Attempts[0].Pages)
	assert.Contains(t, res.Emails, "vladimir@revolut.com")
}

func TestDiscover_SourceContentFeedsLaterTiers(t *testing.T) {
	s := &fakeSearcher{}
	v := &fakeVerifier{valid: map[string]bool{"nik@revolut.com": true}}
	rec := revolut()
	rec.SourceContent = "Nik Storonsky, founder and CEO"

	res := New(s, &fakeFetcher{}, WithVerifier(v)).Discover(context.Background(), rec)

	require.True(t, res.Accepted)
	assert.Contains(t, res.Names, "Nik Storonsky")
	assert.Contains(t, v.calls, "nik@revolut.com")
}
