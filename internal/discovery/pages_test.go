package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/startup-matcher/internal/search"
)

func TestAssignPathPriority(t *testing.T) {
	tests := []struct {
		url  string
		want float64
	}{
		{"https://acme.io/team", 0.95},
		{"https://acme.io/about-us/leadership", 0.95},
		{"https://acme.io/about", 0.85},
		{"https://acme.io/press", 0.6},
		{"https://acme.io/careers/engineer", 0.1},
		{"https://acme.io/", 0.5},
		{"https://acme.io", 0.5},
		{"https://acme.io/pricing", 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.InDelta(t, tt.want, AssignPathPriority(tt.url), 1e-9)
		})
	}
}

func TestIsFromCompanyDomain(t *testing.T) {
	assert.True(t, IsFromCompanyDomain("https://www.acme.io/team", "acme.io"))
	assert.True(t, IsFromCompanyDomain("https://blog.acme.io/post", "acme.io"))
	assert.False(t, IsFromCompanyDomain("https://notacme.io/team", "acme.io"))
	assert.False(t, IsFromCompanyDomain("https://acme.io/team", ""))
}

func TestRankPages(t *testing.T) {
	results := []search.Result{
		{URL: "https://acme.io/pricing"},
		{URL: "https://techcrunch.com/acme-team"},
		{URL: "https://acme.io/team"},
		{URL: "https://acme.io/team"},
		{URL: "https://acme.io/jobs/1"},
		{URL: "https://acme.io/about"},
	}

	got := RankPages(results, "acme.io", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "https://acme.io/team", got[0].URL)
	assert.Equal(t, "https://acme.io/about", got[1].URL)

	all := RankPages(results, "acme.io", 10)
	assert.Len(t, all, 3, "off-domain, duplicate and job pages are dropped")
}

func TestWellKnownPages(t *testing.T) {
	pages := WellKnownPages("acme.io", 2)
	require.Len(t, pages, 2)
	assert.Equal(t, "https://acme.io/about", pages[0].URL)
	assert.Equal(t, "https://acme.io/team", pages[1].URL)
}

func TestQueries(t *testing.T) {
	assert.Equal(t, "site:acme.io (team OR about OR leadership OR founders)", SiteQuery("acme.io"))
	assert.Equal(t, `site:linkedin.com/in "Acme" founder`, NetworkQuery("Acme"))
}
