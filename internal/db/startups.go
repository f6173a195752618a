package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/startup-matcher/internal/types"
)

// ErrNotFound is returned by updates addressed to a record that does not exist.
var ErrNotFound = errors.New("record not found")

// -----------------------------------------------------------------------------
// Startup Methods
// -----------------------------------------------------------------------------

var startupColumnList = []string{
	"name",
	"COALESCE(industry, '')",
	"COALESCE(description, '')",
	"COALESCE(location, '')",
	"COALESCE(funding_stage, '')",
	"COALESCE(funding_amount, '')",
	"COALESCE(funding_date, '')",
	"COALESCE(website, '')",
	"COALESCE(yc_batch, '')",
	"COALESCE(company_slug, '')",
	"COALESCE(founder_names, '')",
	"COALESCE(founder_emails, '')",
	"COALESCE(founder_linkedins, '')",
	"COALESCE(source_url, '')",
	"COALESCE(source_content, '')",
	"COALESCE(data_source, '')",
	"needs_enrichment",
	"enrichment_status",
	"quality_score",
	"quality_status",
	"retry_count",
	"enrichment_started_at",
	"updated_at",
	"COALESCE(vector_id, '')",
}

var startupColumns = strings.Join(startupColumnList, ", ")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStartup(row rowScanner) (*types.StartupRecord, error) {
	var (
		s                           types.StartupRecord
		names, emails, links        string
		enrichStatus, qualityStatus string
	)
	err := row.Scan(&s.Name, &s.Industry, &s.Description, &s.Location,
		&s.FundingStage, &s.FundingAmount, &s.FundingDate, &s.Website,
		&s.YCBatch, &s.CompanySlug, &names, &emails, &links,
		&s.SourceURL, &s.SourceContent, &s.DataSource,
		&s.NeedsEnrichment, &enrichStatus, &s.QualityScore, &qualityStatus,
		&s.RetryCount, &s.EnrichmentStartedAt, &s.UpdatedAt, &s.VectorID)
	if err != nil {
		return nil, err
	}
	s.FounderNames = types.SplitList(names)
	s.FounderEmails = types.SplitList(emails)
	s.FounderLinkedIns = types.SplitList(links)
	s.EnrichmentStatus = types.EnrichmentStatus(enrichStatus)
	s.QualityStatus = types.QualityStatus(qualityStatus)
	return &s, nil
}

func collectStartups(rows pgx.Rows) ([]types.StartupRecord, error) {
	defer rows.Close()

	var out []types.StartupRecord
	for rows.Next() {
		s, err := scanStartup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan startup: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate startups: %w", err)
	}
	return out, nil
}

// InsertStartup creates a startup record. An existing name yields ErrAlreadyExists.
func (db *DB) InsertStartup(ctx context.Context, s *types.StartupRecord) error {
	status := s.EnrichmentStatus
	if status == "" {
		status = types.EnrichmentPending
	}
	quality := s.QualityStatus
	if quality == "" {
		quality = types.QualityFailed
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO startups (name, industry, description, location, funding_stage, funding_amount,
		                       funding_date, website, yc_batch, company_slug, founder_names, founder_emails,
		                       founder_linkedins, source_url, source_content, data_source, needs_enrichment,
		                       enrichment_status, quality_score, quality_status, retry_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		s.Name, nullIfEmpty(s.Industry), nullIfEmpty(s.Description), nullIfEmpty(s.Location),
		nullIfEmpty(s.FundingStage), nullIfEmpty(s.FundingAmount), nullIfEmpty(s.FundingDate),
		nullIfEmpty(s.Website), nullIfEmpty(s.YCBatch), nullIfEmpty(s.CompanySlug),
		types.JoinList(s.FounderNames), types.JoinList(s.FounderEmails), types.JoinList(s.FounderLinkedIns),
		nullIfEmpty(s.SourceURL), nullIfEmpty(s.SourceContent), nullIfEmpty(s.DataSource),
		s.NeedsEnrichment, string(status), s.QualityScore, string(quality), s.RetryCount,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: startup %s", ErrAlreadyExists, s.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to insert startup %s: %w", s.Name, err)
	}
	return nil
}

// GetStartup retrieves a startup by name
func (db *DB) GetStartup(ctx context.Context, name string) (*types.StartupRecord, error) {
	s, err := scanStartup(db.pool.QueryRow(ctx,
		`SELECT `+startupColumns+` FROM startups WHERE name = $1`,
		name,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get startup: %w", err)
	}
	return s, nil
}

// ListPending returns startups waiting for an enrichment pass, oldest first.
func (db *DB) ListPending(ctx context.Context, limit int) ([]types.StartupRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+startupColumns+` FROM startups
		 WHERE needs_enrichment AND enrichment_status = $1
		 ORDER BY updated_at, name
		 LIMIT $2`,
		string(types.EnrichmentPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending startups: %w", err)
	}
	return collectStartups(rows)
}

// RetryFilter narrows ListRetryCandidates.
type RetryFilter struct {
	MaxRetries int
	Limit      uint64
	// Batch restricts the selection to one accelerator batch when set.
	Batch string
}

func retryCandidatesQuery(f RetryFilter) (string, []any, error) {
	q := psql.Select(startupColumnList...).
		From("startups").
		Where(sq.Or{
			sq.Eq{"enrichment_status": []string{
				string(types.EnrichmentFailed),
				string(types.EnrichmentNeedsReview),
			}},
			sq.And{
				sq.Eq{"enrichment_status": string(types.EnrichmentCompleted)},
				sq.Eq{"quality_status": []string{
					string(types.QualityPoor),
					string(types.QualityFailed),
				}},
			},
		}).
		Where(sq.Lt{"retry_count": f.MaxRetries}).
		OrderBy("updated_at", "name")
	if f.Batch != "" {
		q = q.Where(sq.Eq{"yc_batch": f.Batch})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q.ToSql()
}

// ListRetryCandidates returns failed, needs-review and low-quality completed
// startups that still have retries left, least recently updated first.
func (db *DB) ListRetryCandidates(ctx context.Context, f RetryFilter) ([]types.StartupRecord, error) {
	query, args, err := retryCandidatesQuery(f)
	if err != nil {
		return nil, fmt.Errorf("failed to build retry query: %w", err)
	}
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list retry candidates: %w", err)
	}
	return collectStartups(rows)
}

// MarkInProgress claims a startup for an enrichment pass. It only succeeds
// while the row is still in the from status, so two workers cannot both claim it.
func (db *DB) MarkInProgress(ctx context.Context, name string, from types.EnrichmentStatus, startedAt time.Time) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE startups
		 SET enrichment_status = $3, enrichment_started_at = $4, updated_at = NOW()
		 WHERE name = $1 AND enrichment_status = $2`,
		name, string(from), string(types.EnrichmentInProgress), startedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark %s in progress: %w", name, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SaveEnrichment stores the outcome of a finished pass. The founder and quality
// fields are only written when the stored quality score is not higher than the
// new one; otherwise just the status is settled against the stored quality.
// It reports whether the new data was written.
func (db *DB) SaveEnrichment(ctx context.Context, s *types.StartupRecord) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE startups
		 SET founder_names = $2, founder_emails = $3, founder_linkedins = $4,
		     funding_stage = $5, funding_amount = $6,
		     needs_enrichment = $7, enrichment_status = $8,
		     quality_score = $9, quality_status = $10,
		     enrichment_started_at = NULL, updated_at = NOW()
		 WHERE name = $1 AND quality_score <= $9`,
		s.Name, types.JoinList(s.FounderNames), types.JoinList(s.FounderEmails), types.JoinList(s.FounderLinkedIns),
		nullIfEmpty(s.FundingStage), nullIfEmpty(s.FundingAmount),
		s.NeedsEnrichment, string(s.EnrichmentStatus),
		s.QualityScore, string(s.QualityStatus),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save enrichment for %s: %w", s.Name, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	tag, err = db.pool.Exec(ctx,
		`UPDATE startups
		 SET enrichment_status = CASE WHEN quality_status IN ('poor', 'failed') THEN 'needs_review' ELSE 'completed' END,
		     needs_enrichment = quality_status IN ('poor', 'failed'),
		     enrichment_started_at = NULL, updated_at = NOW()
		 WHERE name = $1`,
		s.Name,
	)
	if err != nil {
		return false, fmt.Errorf("failed to settle status for %s: %w", s.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return false, fmt.Errorf("%w: startup %s", ErrNotFound, s.Name)
	}
	return false, nil
}

// RecoverStale returns in-progress startups claimed before cutoff to pending
// and reports their names.
func (db *DB) RecoverStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`UPDATE startups
		 SET enrichment_status = $1, needs_enrichment = TRUE, enrichment_started_at = NULL, updated_at = NOW()
		 WHERE enrichment_status = $2 AND enrichment_started_at < $3
		 RETURNING name`,
		string(types.EnrichmentPending), string(types.EnrichmentInProgress), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to recover stale startups: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read recovered startups: %w", err)
	}
	return names, nil
}

// ReleaseStartup puts an in-progress startup back to pending, keeping whatever
// founder data was gathered before the pass was interrupted.
func (db *DB) ReleaseStartup(ctx context.Context, s *types.StartupRecord) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE startups
		 SET founder_names = $3, founder_emails = $4, founder_linkedins = $5,
		     enrichment_status = $2, needs_enrichment = TRUE,
		     enrichment_started_at = NULL, updated_at = NOW()
		 WHERE name = $1 AND enrichment_status = 'in_progress'`,
		s.Name, string(types.EnrichmentPending),
		types.JoinList(s.FounderNames), types.JoinList(s.FounderEmails), types.JoinList(s.FounderLinkedIns),
	)
	if err != nil {
		return fmt.Errorf("failed to release startup %s: %w", s.Name, err)
	}
	return nil
}

// ResetForRetry moves a settled startup back to pending with the given retry count.
func (db *DB) ResetForRetry(ctx context.Context, name string, retryCount int) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE startups
		 SET enrichment_status = $2, needs_enrichment = TRUE, retry_count = $3,
		     enrichment_started_at = NULL, updated_at = NOW()
		 WHERE name = $1 AND enrichment_status IN ('failed', 'needs_review', 'completed')`,
		name, string(types.EnrichmentPending), retryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to reset %s for retry: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: settled startup %s", ErrNotFound, name)
	}
	return nil
}

// SetStartupVector records the vector index entry for a startup.
func (db *DB) SetStartupVector(ctx context.Context, name, vectorID string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE startups SET vector_id = $2, updated_at = NOW() WHERE name = $1`,
		name, nullIfEmpty(vectorID),
	)
	if err != nil {
		return fmt.Errorf("failed to set vector for %s: %w", name, err)
	}
	return nil
}

// ListStartupsWithoutVector returns enriched startups that have no vector yet.
func (db *DB) ListStartupsWithoutVector(ctx context.Context, limit int) ([]types.StartupRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+startupColumns+` FROM startups
		 WHERE COALESCE(vector_id, '') = '' AND enrichment_status IN ('completed', 'needs_review')
		 ORDER BY updated_at, name
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list startups without vector: %w", err)
	}
	return collectStartups(rows)
}

// StatusCounts returns the number of startups in each enrichment status.
func (db *DB) StatusCounts(ctx context.Context) (map[types.EnrichmentStatus]int, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT enrichment_status, count(*) FROM startups GROUP BY enrichment_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count startups: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.EnrichmentStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[types.EnrichmentStatus(status)] = n
	}
	return counts, rows.Err()
}
