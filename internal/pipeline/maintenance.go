package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/startup-matcher/internal/db"
	"github.com/jonathan/startup-matcher/internal/embedding"
	"github.com/jonathan/startup-matcher/internal/quality"
)

// Recover returns in-progress startups whose pass was abandoned to pending.
func (r *Runner) Recover(ctx context.Context) ([]string, error) {
	names, err := r.store.RecoverStale(ctx, r.policy.StaleCutoff(r.now()))
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		r.logger.Info("recovered abandoned passes", "count", len(names), "startups", names)
	}
	return names, nil
}

// RetryOptions narrows Retry.
type RetryOptions struct {
	Limit uint64
	Batch string
}

// RetryResult lists what Retry did.
type RetryResult struct {
	Reset     []string `json:"reset"`
	Exhausted []string `json:"exhausted,omitempty"`
}

// Retry queues failed and low-quality startups for another pass.
func (r *Runner) Retry(ctx context.Context, opts RetryOptions) (*RetryResult, error) {
	candidates, err := r.store.ListRetryCandidates(ctx, db.RetryFilter{
		MaxRetries: r.policy.MaxRetries,
		Limit:      opts.Limit,
		Batch:      opts.Batch,
	})
	if err != nil {
		return nil, err
	}

	res := &RetryResult{}
	for i := range candidates {
		rec := &candidates[i]
		if err := r.policy.Reset(rec); err != nil {
			if errors.Is(err, quality.ErrRetryExhausted) {
				res.Exhausted = append(res.Exhausted, rec.Name)
				continue
			}
			r.logger.Warn("startup not reset", "startup", rec.Name, "error", err)
			continue
		}
		if err := r.store.ResetForRetry(ctx, rec.Name, rec.RetryCount); err != nil {
			return res, err
		}
		res.Reset = append(res.Reset, rec.Name)
	}
	r.logger.Info("queued startups for retry", "reset", len(res.Reset), "exhausted", len(res.Exhausted))
	return res, nil
}

// BackfillResult counts what Backfill embedded.
type BackfillResult struct {
	Startups   int `json:"startups"`
	Candidates int `json:"candidates"`
	Matches    int `json:"matches"`
	Failed     int `json:"failed"`
}

// Backfill embeds startups and candidates that have no vector yet and
// computes the candidates' matches. It stops early when the embedding
// service is down.
func (r *Runner) Backfill(ctx context.Context, limit int) (*BackfillResult, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("backfill needs an embedder")
	}
	if limit <= 0 {
		limit = r.batchSize
	}
	res := &BackfillResult{}

	startups, err := r.store.ListStartupsWithoutVector(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range startups {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := r.embedder.EmbedStartup(ctx, &startups[i]); err != nil {
			if errors.Is(err, embedding.ErrEmbeddingUnavailable) {
				return res, err
			}
			r.logger.Warn("startup not embedded", "startup", startups[i].Name, "error", err)
			res.Failed++
			continue
		}
		res.Startups++
	}

	candidates, err := r.store.ListCandidatesWithoutVector(ctx, limit)
	if err != nil {
		return res, err
	}
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		c := &candidates[i]
		vec, err := r.embedder.EmbedCandidate(ctx, c)
		if err != nil {
			if errors.Is(err, embedding.ErrEmbeddingUnavailable) {
				return res, err
			}
			r.logger.Warn("candidate not embedded", "email", c.Email, "error", err)
			res.Failed++
			continue
		}
		res.Candidates++
		matches, err := r.embedder.MatchCandidate(ctx, c.Email, vec)
		if err != nil {
			return res, err
		}
		res.Matches += len(matches)
	}
	return res, nil
}
