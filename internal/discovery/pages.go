package discovery

import (
	"net/url"
	"sort"
	"strings"

	"github.com/jonathan/startup-matcher/internal/search"
)

// RankedURL is a result page with a fetch priority.
type RankedURL struct {
	URL      string  `json:"url"`
	Priority float64 `json:"priority"` // 0.0-1.0, higher = more likely to list founders
}

// wellKnownPaths are fetched directly when site search finds nothing usable.
var wellKnownPaths = []string{"/about", "/team", "/company"}

// SiteQuery is the Tier 1 query for a company domain.
func SiteQuery(domain string) string {
	return "site:" + domain + " (team OR about OR leadership OR founders)"
}

// NetworkQuery is the Tier 2 query for a company name.
func NetworkQuery(company string) string {
	return `site:linkedin.com/in "` + company + `" founder`
}

// AssignPathPriority scores a URL by how likely its path is to name the founders.
func AssignPathPriority(rawURL string) float64 {
	u, err := url.Parse(strings.ToLower(rawURL))
	if err != nil {
		return 0
	}
	path := u.Path

	for _, p := range []string{"founder", "leadership", "team", "people"} {
		if strings.Contains(path, p) {
			return 0.95
		}
	}
	for _, p := range []string{"about", "company", "who-we-are", "our-story"} {
		if strings.Contains(path, p) {
			return 0.85
		}
	}
	for _, p := range []string{"press", "news", "contact", "blog"} {
		if strings.Contains(path, p) {
			return 0.6
		}
	}
	for _, p := range []string{"/careers/", "/jobs/", "/legal", "/privacy", "/terms", "/product/", "/docs/"} {
		if strings.Contains(path, p) {
			return 0.1
		}
	}
	if path == "" || path == "/" {
		return 0.5
	}
	return 0.4
}

// IsFromCompanyDomain reports whether rawURL is on domain or one of its subdomains.
func IsFromCompanyDomain(rawURL, domain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || domain == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// RankPages keeps the on-domain results, best first, at most limit of them.
func RankPages(results []search.Result, domain string, limit int) []RankedURL {
	seen := make(map[string]bool)
	var ranked []RankedURL
	for _, r := range results {
		if !IsFromCompanyDomain(r.URL, domain) || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		ranked = append(ranked, RankedURL{URL: r.URL, Priority: AssignPathPriority(r.URL)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority > ranked[j].Priority
	})
	// pages that are almost never about people are not worth a fetch
	kept := ranked[:0]
	for _, r := range ranked {
		if r.Priority > 0.1 {
			kept = append(kept, r)
		}
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// WellKnownPages returns the fallback pages for domain.
func WellKnownPages(domain string, limit int) []RankedURL {
	var pages []RankedURL
	for _, p := range wellKnownPaths {
		if len(pages) == limit {
			break
		}
		u := "https://" + domain + p
		pages = append(pages, RankedURL{URL: u, Priority: AssignPathPriority(u)})
	}
	return pages
}
