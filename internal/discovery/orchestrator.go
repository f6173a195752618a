// Package discovery finds founder names and emails for a startup by running
// progressively more expensive strategies until one produces an accepted result.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/startup-matcher/internal/extract"
	"github.com/jonathan/startup-matcher/internal/fetch"
	"github.com/jonathan/startup-matcher/internal/llm"
	"github.com/jonathan/startup-matcher/internal/search"
	"github.com/jonathan/startup-matcher/internal/types"
	"github.com/jonathan/startup-matcher/internal/verify"
)

// Defaults
const (
	DefaultMaxPages     = 3
	DefaultFetchTimeout = 30 * time.Second
	// maxPatternNames bounds verification calls to a few names per startup.
	maxPatternNames = 3
)

var (
	// ErrNoDomain is recorded on tiers that need a website domain.
	ErrNoDomain = errors.New("startup has no website domain")
	// ErrNoVerifier is recorded on Tier 3 when no verification service is configured.
	ErrNoVerifier = errors.New("no email verification service configured")
	// ErrNoNames is recorded on Tier 3 when no founder name is known.
	ErrNoNames = errors.New("no founder names to generate patterns from")
)

// Tier is one strategy level.
type Tier int

// Tiers, in the order they are attempted
const (
	TierSiteSearch Tier = iota + 1
	TierNetworkSearch
	TierPattern
)

func (t Tier) String() string {
	switch t {
	case TierSiteSearch:
		return "site_search"
	case TierNetworkSearch:
		return "network_search"
	case TierPattern:
		return "pattern"
	}
	return fmt.Sprintf("tier_%d", int(t))
}

// Attempt records what one tier did.
type Attempt struct {
	Tier     Tier
	Query    string
	Results  []search.Result
	Pages    []string
	Entities []extract.Entity
	Accepted bool
	// Err is the reason the tier fell short, if any. Empty extraction is not an error.
	Err error
}

// Result is everything discovered for one startup.
type Result struct {
	Names     []string
	Emails    []string
	LinkedIns []string
	Funding   *extract.Funding
	Entities  []extract.Entity
	Attempts  []Attempt
	Accepted  bool
	// Confidence is the mean confidence of the accepted names and emails.
	Confidence float64
}

// Escalations returns the tiers that were started.
func (r *Result) Escalations() []Tier {
	tiers := make([]Tier, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		tiers = append(tiers, a.Tier)
	}
	return tiers
}

// FounderReader extracts founders from page text with a language model.
type FounderReader interface {
	Extract(ctx context.Context, company, text string) (*llm.Founders, error)
}

// Orchestrator runs the discovery tiers.
type Orchestrator struct {
	searcher     search.Searcher
	fetcher      fetch.Fetcher
	verifier     verify.Verifier
	reader       FounderReader
	maxPages     int
	fetchTimeout time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithVerifier enables Tier 3.
func WithVerifier(v verify.Verifier) Option {
	return func(o *Orchestrator) { o.verifier = v }
}

// WithFounderReader adds model extraction on fetched pages.
func WithFounderReader(r FounderReader) Option {
	return func(o *Orchestrator) { o.reader = r }
}

// WithMaxPages sets how many pages Tier 1 fetches.
func WithMaxPages(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxPages = n
		}
	}
}

// WithFetchTimeout bounds each page fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator.
func New(searcher search.Searcher, fetcher fetch.Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		searcher:     searcher,
		fetcher:      fetcher,
		maxPages:     DefaultMaxPages,
		fetchTimeout: DefaultFetchTimeout,
		logger:       slog.Default().With("component", "discovery"),
		tracer:       otel.Tracer("github.com/jonathan/startup-matcher/internal/discovery"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// session is the state shared by the tiers of one Discover call.
type session struct {
	rec       *types.StartupRecord
	domain    string
	extractor *extract.Extractor
	entities  []extract.Entity
	funding   *extract.Funding
}

func (s *session) add(entities ...extract.Entity) {
	s.entities = extract.Merge(s.entities, entities)
}

func (s *session) names() []string {
	return extract.Values(s.entities, extract.KindName)
}

func (s *session) accepted() bool {
	return len(extract.OfKind(s.entities, extract.KindName)) > 0 &&
		len(extract.OfKind(s.entities, extract.KindEmail)) > 0
}

func (s *session) noteFunding(text string) {
	if s.funding == nil {
		s.funding = extract.ParseFunding(text)
	}
}

// Discover runs the tiers for rec in order and stops at the first one that
// yields a founder name and an associated email. Failures are recorded on the
// attempts; Discover itself never fails. Once ctx is cancelled no further
// searches are issued and whatever was found so far is returned.
func (o *Orchestrator) Discover(ctx context.Context, rec *types.StartupRecord) *Result {
	ctx, span := o.tracer.Start(ctx, "discovery.Discover",
		trace.WithAttributes(attribute.String("startup.name", rec.Name)))
	defer span.End()

	s := &session{
		rec:       rec,
		domain:    rec.Domain(),
		extractor: extract.New(rec.Name, rec.Domain()),
	}
	// names from an earlier pass still help associate emails and seed patterns
	for _, name := range rec.FounderNames {
		if s.extractor.AcceptName(name) {
			s.add(extract.NewEntity(name, extract.KindName, extract.Source{Kind: extract.SourceSnippet, Ref: "record"}))
		}
	}

	res := &Result{}
	tiers := []struct {
		tier Tier
		run  func(context.Context, *session) Attempt
	}{
		{TierSiteSearch, o.siteSearch},
		{TierNetworkSearch, o.networkSearch},
		{TierPattern, o.patterns},
	}
	for _, t := range tiers {
		if ctx.Err() != nil {
			o.logger.Info("discovery interrupted", "startup", rec.Name, "next_tier", t.tier.String())
			break
		}

		tctx, tspan := o.tracer.Start(ctx, "discovery."+t.tier.String())
		att := t.run(tctx, s)
		att.Tier = t.tier
		att.Accepted = s.accepted()
		tspan.SetAttributes(
			attribute.Int("discovery.entities", len(att.Entities)),
			attribute.Bool("discovery.accepted", att.Accepted),
		)
		if att.Err != nil {
			tspan.RecordError(att.Err)
		}
		tspan.End()

		res.Attempts = append(res.Attempts, att)
		o.logger.Debug("tier finished",
			"startup", rec.Name,
			"tier", t.tier.String(),
			"entities", len(att.Entities),
			"accepted", att.Accepted,
			"error", att.Err,
		)
		if att.Accepted {
			break
		}
	}

	res.Entities = s.entities
	res.Names = s.names()
	res.Emails = extract.Values(s.entities, extract.KindEmail)
	res.LinkedIns = extract.Values(s.entities, extract.KindLinkedIn)
	res.Funding = s.funding
	res.Accepted = s.accepted()
	if res.Accepted {
		accepted := append(extract.OfKind(s.entities, extract.KindName), extract.OfKind(s.entities, extract.KindEmail)...)
		res.Confidence = extract.MeanConfidence(accepted)
	}

	span.SetAttributes(
		attribute.Bool("discovery.accepted", res.Accepted),
		attribute.Int("discovery.tiers", len(res.Attempts)),
	)
	if !res.Accepted {
		span.SetStatus(codes.Error, "no founder contact accepted")
	}
	return res
}

// siteSearch is Tier 1: read the record's provenance, then search the
// company's own site and read the best pages in full.
func (o *Orchestrator) siteSearch(ctx context.Context, s *session) Attempt {
	var att Attempt
	o.readProvenance(ctx, s, &att)
	if s.accepted() {
		att.Entities = extract.Merge(att.Entities)
		return att
	}
	if s.domain == "" {
		att.Err = ErrNoDomain
		return att
	}
	att.Query = SiteQuery(s.domain)

	results, err := o.searcher.Search(ctx, att.Query)
	if err != nil {
		att.Err = err
	}
	att.Results = results
	for _, r := range results {
		text := r.Title + "\n" + r.Snippet
		att.Entities = append(att.Entities,
			s.extractor.ExtractAll(text, extract.Source{Kind: extract.SourceSnippet, Ref: r.URL}, s.names()...)...)
		s.noteFunding(text)
	}
	s.add(att.Entities...)

	if ctx.Err() != nil {
		return att
	}
	pages := RankPages(results, s.domain, o.maxPages)
	if len(pages) == 0 {
		pages = WellKnownPages(s.domain, o.maxPages)
	}

	texts := o.fetchPages(ctx, pages)
	for _, p := range pages {
		text, ok := texts[p.URL]
		if !ok {
			continue
		}
		att.Pages = append(att.Pages, p.URL)
		found := s.extractor.ExtractAll(text, extract.Source{Kind: extract.SourcePage, Ref: p.URL}, s.names()...)
		att.Entities = append(att.Entities, found...)
		s.add(found...)
		s.noteFunding(text)
	}

	if !s.accepted() && o.reader != nil {
		for _, p := range att.Pages {
			if ctx.Err() != nil {
				break
			}
			text, ok := texts[p]
			if !ok {
				continue
			}
			found := o.readFounders(ctx, s, p, text)
			att.Entities = append(att.Entities, found...)
			s.add(found...)
		}
	}

	if len(att.Pages) == 0 && att.Err == nil {
		att.Err = fmt.Errorf("%w: no page on %s could be fetched", fetch.ErrFetchFailed, s.domain)
	}
	att.Entities = extract.Merge(att.Entities)
	return att
}

// provenanceRef marks entities read from the text stored with the record.
const provenanceRef = "source_content"

// readProvenance extracts from the article the record was imported from and
// from its source page (for YC imports, the company page), both as page text.
func (o *Orchestrator) readProvenance(ctx context.Context, s *session, att *Attempt) {
	read := func(text, ref string) {
		found := s.extractor.ExtractAll(text, extract.Source{Kind: extract.SourcePage, Ref: ref}, s.names()...)
		att.Entities = append(att.Entities, found...)
		s.add(found...)
		s.noteFunding(text)
	}

	if content := strings.TrimSpace(s.rec.SourceContent); content != "" {
		read(content, provenanceRef)
	}
	if s.rec.SourceURL == "" || s.accepted() || ctx.Err() != nil {
		return
	}
	texts := o.fetchPages(ctx, []RankedURL{{URL: s.rec.SourceURL, Priority: 1}})
	if text, ok := texts[s.rec.SourceURL]; ok {
		att.Pages = append(att.Pages, s.rec.SourceURL)
		read(text, s.rec.SourceURL)
	}
}

// fetchPages fetches pages concurrently. Fetches run on a context detached from
// ctx so that a run cancellation lets them finish; each is bounded by the fetch timeout.
func (o *Orchestrator) fetchPages(ctx context.Context, pages []RankedURL) map[string]string {
	var (
		mu    sync.Mutex
		texts = make(map[string]string, len(pages))
		g     errgroup.Group
	)
	g.SetLimit(o.maxPages)
	detached := context.WithoutCancel(ctx)

	for _, p := range pages {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(detached, o.fetchTimeout)
			defer cancel()

			text, err := o.fetcher.FetchText(fctx, p.URL)
			if err != nil {
				// one bad page never sinks the tier
				o.logger.Debug("page skipped", "url", p.URL, "error", err)
				return nil
			}
			mu.Lock()
			texts[p.URL] = text
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return texts
}

// readFounders asks the model about one page. Emails it reports are kept only
// when they literally appear on the page and can be associated with a name.
func (o *Orchestrator) readFounders(ctx context.Context, s *session, pageURL, text string) []extract.Entity {
	founders, err := o.reader.Extract(ctx, s.rec.Name, text)
	if err != nil {
		o.logger.Warn("model extraction failed", "url", pageURL, "error", err)
		return nil
	}

	src := extract.Source{Kind: extract.SourceLLM, Ref: pageURL}
	lowerText := strings.ToLower(text)
	var out []extract.Entity
	for _, f := range founders.Founders {
		name := strings.Join(strings.Fields(f.Name), " ")
		if !s.extractor.AcceptName(name) {
			continue
		}
		out = append(out, extract.NewEntity(name, extract.KindName, src))

		email := strings.ToLower(strings.TrimSpace(f.Email))
		if email != "" && strings.Contains(lowerText, email) &&
			extract.Associated(email, []string{name}, text, s.domain) {
			out = append(out, extract.NewEntity(email, extract.KindEmail, src))
		}
		for _, link := range extract.LinkedInProfiles(f.LinkedIn) {
			out = append(out, extract.NewEntity(link, extract.KindLinkedIn, src))
		}
	}
	if s.funding == nil && founders.FundingStage != "" {
		s.funding = &extract.Funding{Stage: founders.FundingStage, Amount: founders.FundingAmount}
	}
	return out
}

// networkSearch is Tier 2: find founder profiles on the professional network.
// These results never carry emails; the names feed Tier 3.
func (o *Orchestrator) networkSearch(ctx context.Context, s *session) Attempt {
	att := Attempt{Query: NetworkQuery(s.rec.Name)}

	results, err := o.searcher.Search(ctx, att.Query)
	att.Results = results
	if err != nil {
		att.Err = err
		return att
	}

	for _, r := range results {
		src := extract.Source{Kind: extract.SourceProfile, Ref: r.URL}
		profiles := extract.LinkedInProfiles(r.URL)
		if len(profiles) == 0 {
			continue
		}
		// the snippet must tie the person to this company
		if !strings.Contains(strings.ToLower(r.Title+" "+r.Snippet), strings.ToLower(s.rec.Name)) {
			continue
		}
		if name := s.extractor.NameFromProfileTitle(r.Title); name != "" {
			att.Entities = append(att.Entities, extract.NewEntity(name, extract.KindName, src))
			att.Entities = append(att.Entities, extract.NewEntity(profiles[0], extract.KindLinkedIn, src))
		}
		att.Entities = append(att.Entities,
			s.extractor.Extract(r.Snippet, extract.KindName, extract.Source{Kind: extract.SourceSnippet, Ref: r.URL})...)
	}
	att.Entities = extract.Merge(att.Entities)
	s.add(att.Entities...)
	return att
}

// patterns is Tier 3: guess addresses from accepted names and keep the first
// one the verification service confirms. Without a verifier it always fails.
func (o *Orchestrator) patterns(ctx context.Context, s *session) Attempt {
	att := Attempt{}
	switch {
	case o.verifier == nil:
		att.Err = ErrNoVerifier
		return att
	case s.domain == "":
		att.Err = ErrNoDomain
		return att
	}

	names := extract.OfKind(s.entities, extract.KindName)
	if len(names) == 0 {
		att.Err = ErrNoNames
		return att
	}
	if len(names) > maxPatternNames {
		names = names[:maxPatternNames]
	}

	var lastErr error
	for _, n := range names {
		for _, local := range extract.LocalParts(n.Value) {
			if ctx.Err() != nil {
				att.Err = ctx.Err()
				return att
			}
			email := local + "@" + s.domain
			att.Query = email
			err := o.verifier.Verify(ctx, email)
			if err != nil {
				lastErr = err
				continue
			}
			e := extract.NewEntity(email, extract.KindEmail, extract.Source{Kind: extract.SourceVerified, Ref: "verify:" + email})
			att.Entities = append(att.Entities, e)
			s.add(e)
			return att
		}
	}
	att.Err = lastErr
	return att
}
