package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jonathan/startup-matcher/internal/db"
	"github.com/jonathan/startup-matcher/internal/discovery"
	"github.com/jonathan/startup-matcher/internal/embedding"
	"github.com/jonathan/startup-matcher/internal/fetch"
	"github.com/jonathan/startup-matcher/internal/llm"
	"github.com/jonathan/startup-matcher/internal/matching"
	"github.com/jonathan/startup-matcher/internal/observability"
	"github.com/jonathan/startup-matcher/internal/pipeline"
	"github.com/jonathan/startup-matcher/internal/quality"
	"github.com/jonathan/startup-matcher/internal/ratelimit"
	"github.com/jonathan/startup-matcher/internal/search"
	"github.com/jonathan/startup-matcher/internal/vectorindex"
	"github.com/jonathan/startup-matcher/internal/verify"
)

// app holds the services a command needs. Fields are nil until opened.
type app struct {
	db      *db.DB
	engine  *matching.Engine
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openDB(ctx context.Context, a *app) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database URL required: set database_url in the config or DATABASE_URL")
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	a.db = database
	a.closers = append(a.closers, database.Close)
	return nil
}

// openIndexes returns the startup and candidate collections of the configured backend.
func openIndexes(ctx context.Context, a *app) (vectorindex.Index, vectorindex.Index, error) {
	switch cfg.VectorIndex.Backend {
	case "postgres":
		store, err := vectorindex.ConnectPG(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, store.Close)
		startups, err := store.Collection(vectorindex.Startups)
		if err != nil {
			return nil, nil, err
		}
		candidates, err := store.Collection(vectorindex.Candidates)
		if err != nil {
			return nil, nil, err
		}
		return startups, candidates, nil
	default:
		store, err := vectorindex.OpenBadger(cfg.VectorIndex.Dir)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store.Collection(vectorindex.Startups), store.Collection(vectorindex.Candidates), nil
	}
}

func newEmbedder(ctx context.Context) (embedding.Embedder, error) {
	apiKey := cfg.Embedding.APIKey
	if apiKey == "" && cfg.Embedding.Provider == embedding.ProviderGemini {
		apiKey = cfg.LLM.APIKey
	}
	return embedding.New(ctx, embedding.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   apiKey,
		Timeout:  cfg.Embedding.Timeout,
	})
}

// openEngine opens the store, the vector index and the embedder.
func openEngine(ctx context.Context) (*app, error) {
	a := &app{}
	if err := openDB(ctx, a); err != nil {
		return nil, err
	}
	startups, candidates, err := openIndexes(ctx, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	emb, err := newEmbedder(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = matching.New(emb, startups, candidates, a.db,
		matching.WithFloor(cfg.Matching.Floor),
		matching.WithTopK(cfg.Matching.TopK),
	)
	return a, nil
}

// openEnrich opens what an enrich run needs: the store, plus the vector index
// and the embedder unless embedding is switched off.
func openEnrich(ctx context.Context, embed bool) (*app, error) {
	if embed {
		return openEngine(ctx)
	}
	a := &app{}
	if err := openDB(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// embedder returns the engine as a pipeline.Embedder, or nil when none was opened.
func (a *app) embedder() pipeline.Embedder {
	if a.engine == nil {
		return nil
	}
	return a.engine
}

// newOrchestrator wires search, fetch and the optional verifier and model.
func newOrchestrator(ctx context.Context, a *app) (*discovery.Orchestrator, error) {
	if cfg.Search.APIKey == "" || cfg.Search.EngineID == "" {
		return nil, fmt.Errorf("search credentials required: set GOOGLE_SEARCH_API_KEY and GOOGLE_SEARCH_CX")
	}
	backend, err := search.NewGoogleBackend(ctx, cfg.Search.APIKey, cfg.Search.EngineID)
	if err != nil {
		return nil, err
	}
	gate, err := ratelimit.NewGate(cfg.Search.Interval)
	if err != nil {
		return nil, err
	}
	searcher, err := search.NewClient(backend, gate,
		search.WithCacheTTL(cfg.Search.CacheTTL),
		search.WithResultsPerQuery(cfg.Search.ResultsPerQuery),
	)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, searcher.Close)

	fetchOpts := []fetch.PageOption{
		fetch.WithOptions(&fetch.Options{Timeout: cfg.Fetch.Timeout, UserAgent: fetch.DefaultUserAgent}),
	}
	if cfg.Fetch.UseBrowser {
		fetchOpts = append(fetchOpts, fetch.WithRenderer(&fetch.ChromeRenderer{}))
	}

	opts := []discovery.Option{
		discovery.WithMaxPages(cfg.Fetch.MaxPages),
		discovery.WithFetchTimeout(cfg.Fetch.Timeout),
	}
	if cfg.Verify.Endpoint != "" {
		opts = append(opts, discovery.WithVerifier(verify.NewHTTPVerifier(cfg.Verify.Endpoint, cfg.Verify.APIKey)))
	} else {
		slog.Warn("no email verification service configured, pattern guesses will not be used")
	}
	if cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		client, err := llm.NewClient(ctx, llm.DefaultConfig().WithModel(llm.TierLite, cfg.LLM.Model), cfg.LLM.APIKey)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		opts = append(opts, discovery.WithFounderReader(llm.NewFounderExtractor(client)))
	}
	return discovery.New(searcher, fetch.NewPageFetcher(fetchOpts...), opts...), nil
}

func newRunner(store pipeline.Store, d pipeline.Discoverer, e pipeline.Embedder, workers int) *pipeline.Runner {
	if workers <= 0 {
		workers = cfg.Pipeline.Workers
	}
	opts := []pipeline.Option{
		pipeline.WithWorkers(workers),
		pipeline.WithBatchSize(cfg.Pipeline.BatchSize),
		pipeline.WithPolicy(quality.Policy{MaxRetries: cfg.Pipeline.MaxRetries, StaleAfter: cfg.Pipeline.StaleAfter}),
	}
	if e != nil {
		opts = append(opts, pipeline.WithEmbedder(e))
	}
	return pipeline.NewRunner(store, d, opts...)
}

// report prints v as indented JSON, or through the printer in verbose mode.
func report(v any, pretty func(*observability.Printer)) error {
	if verbose && pretty != nil {
		pretty(observability.NewPrinter(os.Stdout))
		return nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, _ = fmt.Fprintln(os.Stdout, string(out))
	return nil
}

// describeFatal adds the in-flight startups to a run abort.
func describeFatal(err error) error {
	var fatal *pipeline.FatalError
	if errors.As(err, &fatal) && len(fatal.InFlight) > 0 {
		return fmt.Errorf("%w (in flight: %v)", err, fatal.InFlight)
	}
	return err
}
