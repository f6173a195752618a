// Package pipeline runs enrichment passes over the startup store with a
// bounded worker pool and keeps each record's lifecycle consistent.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/jonathan/startup-matcher/internal/db"
	"github.com/jonathan/startup-matcher/internal/discovery"
	"github.com/jonathan/startup-matcher/internal/embedding"
	"github.com/jonathan/startup-matcher/internal/quality"
	"github.com/jonathan/startup-matcher/internal/types"
)

// Defaults
const (
	DefaultWorkers   = 4
	DefaultBatchSize = 100
)

// Store is the startup storage the runner reads and writes.
type Store interface {
	GetStartup(ctx context.Context, name string) (*types.StartupRecord, error)
	ListPending(ctx context.Context, limit int) ([]types.StartupRecord, error)
	MarkInProgress(ctx context.Context, name string, from types.EnrichmentStatus, startedAt time.Time) (bool, error)
	SaveEnrichment(ctx context.Context, s *types.StartupRecord) (bool, error)
	ReleaseStartup(ctx context.Context, s *types.StartupRecord) error
	RecoverStale(ctx context.Context, cutoff time.Time) ([]string, error)
	ListRetryCandidates(ctx context.Context, f db.RetryFilter) ([]types.StartupRecord, error)
	ResetForRetry(ctx context.Context, name string, retryCount int) error
	ListStartupsWithoutVector(ctx context.Context, limit int) ([]types.StartupRecord, error)
	ListCandidatesWithoutVector(ctx context.Context, limit int) ([]types.CandidateRecord, error)
}

// Discoverer finds founder contacts for one startup.
type Discoverer interface {
	Discover(ctx context.Context, rec *types.StartupRecord) *discovery.Result
}

// Embedder stores vectors for records and refreshes their matches.
type Embedder interface {
	EmbedStartup(ctx context.Context, rec *types.StartupRecord) (string, error)
	EmbedCandidate(ctx context.Context, c *types.CandidateRecord) ([]float32, error)
	MatchCandidate(ctx context.Context, email string, vector []float32) ([]types.MatchRecord, error)
}

// ProgressEvent represents a progress update during a run
type ProgressEvent struct {
	Step     string `json:"step"`
	Category string `json:"category"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
	Content  any    `json:"content,omitempty"`
}

// ProgressCallback is called when run progress occurs
type ProgressCallback func(event ProgressEvent)

// Outcome is how one startup's pass ended.
type Outcome string

// Outcomes
const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeNeedsReview Outcome = "needs_review"
	OutcomeFailed      Outcome = "failed"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeInterrupted Outcome = "interrupted"
)

// Report describes one startup's pass.
type Report struct {
	Name          string              `json:"name"`
	Outcome       Outcome             `json:"outcome"`
	QualityScore  float64             `json:"quality_score"`
	QualityStatus types.QualityStatus `json:"quality_status,omitempty"`
	Tiers         []string            `json:"tiers,omitempty"`
	// Kept is set when the store held better data and only the status was settled.
	Kept     bool   `json:"kept,omitempty"`
	Embedded bool   `json:"embedded,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Summary is the result of Run.
type Summary struct {
	RunID     uuid.UUID       `json:"run_id"`
	Recovered []string        `json:"recovered,omitempty"`
	Reports   []Report        `json:"reports"`
	Counts    map[Outcome]int `json:"counts"`
	Duration  time.Duration   `json:"duration"`
}

// FatalError aborts a run when the store cannot persist results.
type FatalError struct {
	InFlight []string
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("run aborted with %d startups in flight: %v", len(e.InFlight), e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// RunOptions selects what a run processes.
type RunOptions struct {
	// Names limits the run to these startups; otherwise pending startups are loaded.
	Names []string
	Limit int
	// Force re-runs completed startups.
	Force bool
}

// Runner drives enrichment passes.
type Runner struct {
	store      Store
	discoverer Discoverer
	embedder   Embedder
	workers    int
	batchSize  int
	policy     quality.Policy
	now        func() time.Time
	logger     *slog.Logger
	onProgress ProgressCallback
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithBatchSize sets how many pending startups a run loads when no limit is given.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithPolicy sets the retry and recovery policy.
func WithPolicy(p quality.Policy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithEmbedder embeds startups after an accepted pass.
func WithEmbedder(e Embedder) Option {
	return func(r *Runner) { r.embedder = e }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithProgress registers a progress callback.
func WithProgress(cb ProgressCallback) Option {
	return func(r *Runner) { r.onProgress = cb }
}

// NewRunner creates a Runner.
func NewRunner(store Store, discoverer Discoverer, opts ...Option) *Runner {
	r := &Runner{
		store:      store,
		discoverer: discoverer,
		workers:    DefaultWorkers,
		batchSize:  DefaultBatchSize,
		policy:     quality.DefaultPolicy(),
		now:        time.Now,
		logger:     slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// emitProgress calls the progress callback if configured
func (r *Runner) emitProgress(runID uuid.UUID, step, category, message string, content any) {
	if r.onProgress != nil {
		r.onProgress(ProgressEvent{
			Step:     step,
			Category: category,
			Message:  message,
			RunID:    runID.String(),
			Content:  content,
		})
	}
}

// Run recovers abandoned passes, then enriches the selected startups on the
// worker pool. Cancelling ctx stops new passes from starting; passes already
// running finish their in-flight fetches and persist what they found. A store
// failure aborts the run with a *FatalError.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	start := r.now()
	sum := &Summary{RunID: uuid.New(), Counts: make(map[Outcome]int)}

	recovered, err := r.Recover(ctx)
	if err != nil {
		return sum, &FatalError{Err: err}
	}
	sum.Recovered = recovered

	records, err := r.selectRecords(ctx, opts)
	if err != nil {
		return sum, &FatalError{Err: err}
	}
	r.emitProgress(sum.RunID, "enrich", "start", fmt.Sprintf("enriching %d startups", len(records)), nil)

	pool, err := ants.NewPool(r.workers)
	if err != nil {
		return sum, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		inFlight = make(map[string]bool)
		fatal    *FatalError
	)
	finish := func(name string, rep Report, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if fatal == nil {
				fatal = &FatalError{InFlight: sortedKeys(inFlight), Err: err}
				cancel()
			}
		} else {
			sum.Reports = append(sum.Reports, rep)
			sum.Counts[rep.Outcome]++
		}
		delete(inFlight, name)
	}

	for i := range records {
		if runCtx.Err() != nil {
			break
		}
		rec := &records[i]

		mu.Lock()
		inFlight[rec.Name] = true
		mu.Unlock()

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			rep, err := r.EnrichOne(runCtx, rec, opts.Force)
			finish(rec.Name, rep, err)
			if err == nil {
				r.emitProgress(sum.RunID, rec.Name, string(rep.Outcome),
					fmt.Sprintf("%s: %s (%.2f)", rec.Name, rep.Outcome, rep.QualityScore), rep)
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			delete(inFlight, rec.Name)
			mu.Unlock()
			r.logger.Error("failed to submit startup", "startup", rec.Name, "error", submitErr)
		}
	}
	wg.Wait()

	sort.Slice(sum.Reports, func(i, j int) bool { return sum.Reports[i].Name < sum.Reports[j].Name })
	sum.Duration = r.now().Sub(start)
	r.emitProgress(sum.RunID, "enrich", "done", "run finished", sum.Counts)

	if fatal != nil {
		return sum, fatal
	}
	return sum, nil
}

func (r *Runner) selectRecords(ctx context.Context, opts RunOptions) ([]types.StartupRecord, error) {
	if len(opts.Names) == 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = r.batchSize
		}
		return r.store.ListPending(ctx, limit)
	}

	var out []types.StartupRecord
	for _, name := range opts.Names {
		rec, err := r.store.GetStartup(ctx, name)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			r.logger.Warn("startup not found", "startup", name)
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// EnrichOne runs one pass on rec. A completed record is left untouched unless
// force is set. The returned error is non-nil only when the store failed;
// every other problem ends up in the report.
func (r *Runner) EnrichOne(ctx context.Context, rec *types.StartupRecord, force bool) (Report, error) {
	rep := Report{Name: rec.Name}
	if quality.Settled(rec) && !force {
		rep.Outcome = OutcomeSkipped
		rep.Reason = "already completed"
		rep.QualityScore = rec.QualityScore
		rep.QualityStatus = rec.QualityStatus
		return rep, nil
	}

	if ctx.Err() != nil {
		rep.Outcome = OutcomeSkipped
		rep.Reason = "run cancelled"
		return rep, nil
	}

	from := rec.EnrichmentStatus
	if err := quality.Begin(rec, force, r.now()); err != nil {
		rep.Outcome = OutcomeSkipped
		rep.Reason = err.Error()
		return rep, nil
	}

	// results are persisted even when the run is cancelled mid-pass
	persistCtx := context.WithoutCancel(ctx)
	claimed, err := r.store.MarkInProgress(persistCtx, rec.Name, from, *rec.EnrichmentStartedAt)
	if err != nil {
		return rep, err
	}
	if !claimed {
		rep.Outcome = OutcomeSkipped
		rep.Reason = "claimed by another worker"
		return rep, nil
	}

	res := r.discoverer.Discover(ctx, rec)
	for _, t := range res.Escalations() {
		rep.Tiers = append(rep.Tiers, t.String())
	}
	apply(rec, res)

	if ctx.Err() != nil && !res.Accepted {
		next, err := quality.NextStatus(rec.EnrichmentStatus, quality.EventRecover, rec.QualityStatus)
		if err != nil {
			return rep, err
		}
		rec.EnrichmentStatus = next
		rec.EnrichmentStartedAt = nil
		if err := r.store.ReleaseStartup(persistCtx, rec); err != nil {
			return rep, err
		}
		rep.Outcome = OutcomeInterrupted
		rep.Reason = "run cancelled"
		return rep, nil
	}

	if err := quality.Finish(rec, res.Accepted, res.Confidence); err != nil {
		return rep, err
	}
	saved, err := r.store.SaveEnrichment(persistCtx, rec)
	if err != nil {
		return rep, err
	}
	rep.Kept = !saved
	rep.QualityScore = rec.QualityScore
	rep.QualityStatus = rec.QualityStatus
	rep.Outcome = outcomeOf(rec.EnrichmentStatus)
	if !res.Accepted {
		rep.Reason = lastError(res)
	}

	if saved && res.Accepted && r.embedder != nil {
		rep.Embedded = r.embed(persistCtx, rec)
	}

	r.logger.Info("startup enriched",
		"startup", rec.Name,
		"outcome", rep.Outcome,
		"quality", rec.QualityScore,
		"tiers", len(rep.Tiers),
		"kept_existing", rep.Kept,
	)
	return rep, nil
}

// embed is best effort: a startup without a vector is picked up by backfill.
func (r *Runner) embed(ctx context.Context, rec *types.StartupRecord) bool {
	if _, err := r.embedder.EmbedStartup(ctx, rec); err != nil {
		level := slog.LevelError
		if errors.Is(err, embedding.ErrEmbeddingUnavailable) {
			level = slog.LevelWarn
		}
		r.logger.Log(ctx, level, "startup stored without vector", "startup", rec.Name, "error", err)
		return false
	}
	return true
}

// apply copies what discovery found onto rec. Existing values are kept when
// the pass found nothing of that kind; funding facts only fill gaps.
func apply(rec *types.StartupRecord, res *discovery.Result) {
	if len(res.Names) > 0 {
		rec.FounderNames = res.Names
	}
	if len(res.Emails) > 0 {
		rec.FounderEmails = res.Emails
	}
	if len(res.LinkedIns) > 0 {
		rec.FounderLinkedIns = res.LinkedIns
	}
	if res.Funding != nil {
		if rec.FundingStage == "" {
			rec.FundingStage = res.Funding.Stage
		}
		if rec.FundingAmount == "" {
			rec.FundingAmount = res.Funding.Amount
		}
	}
}

func outcomeOf(s types.EnrichmentStatus) Outcome {
	switch s {
	case types.EnrichmentCompleted:
		return OutcomeCompleted
	case types.EnrichmentNeedsReview:
		return OutcomeNeedsReview
	}
	return OutcomeFailed
}

func lastError(res *discovery.Result) string {
	for i := len(res.Attempts) - 1; i >= 0; i-- {
		if err := res.Attempts[i].Err; err != nil {
			return fmt.Sprintf("%s: %v", res.Attempts[i].Tier, err)
		}
	}
	return "no founder email found"
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
