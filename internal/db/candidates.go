package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/startup-matcher/internal/types"
)

// -----------------------------------------------------------------------------
// Candidate Methods
// -----------------------------------------------------------------------------

const candidateColumns = `email, COALESCE(name, ''), COALESCE(summary, ''), COALESCE(skills, '{}'),
	COALESCE(derived_text, ''), COALESCE(vector_id, ''), updated_at`

func scanCandidate(row rowScanner) (*types.CandidateRecord, error) {
	var c types.CandidateRecord
	if err := row.Scan(&c.Email, &c.Name, &c.Summary, &c.Skills, &c.DerivedText, &c.VectorID, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertCandidate creates or replaces a candidate by email. A re-upload clears
// the vector reference so the candidate is embedded again.
func (db *DB) UpsertCandidate(ctx context.Context, c *types.CandidateRecord) (*types.CandidateRecord, error) {
	email := strings.ToLower(strings.TrimSpace(c.Email))
	if email == "" {
		return nil, fmt.Errorf("candidate email cannot be empty")
	}
	skills := c.Skills
	if skills == nil {
		skills = []string{}
	}

	out, err := scanCandidate(db.pool.QueryRow(ctx,
		`INSERT INTO candidates (email, name, summary, skills, derived_text)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (email) DO UPDATE
		 SET name = $2, summary = $3, skills = $4, derived_text = $5, vector_id = NULL, updated_at = NOW()
		 RETURNING `+candidateColumns,
		email, nullIfEmpty(c.Name), nullIfEmpty(c.Summary), skills, nullIfEmpty(c.DerivedText),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert candidate %s: %w", email, err)
	}
	return out, nil
}

// GetCandidate retrieves a candidate by email
func (db *DB) GetCandidate(ctx context.Context, email string) (*types.CandidateRecord, error) {
	c, err := scanCandidate(db.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return c, nil
}

// SetCandidateVector records the vector index entry for a candidate.
func (db *DB) SetCandidateVector(ctx context.Context, email, vectorID string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE candidates SET vector_id = $2, updated_at = NOW() WHERE email = $1`,
		email, nullIfEmpty(vectorID),
	)
	if err != nil {
		return fmt.Errorf("failed to set vector for %s: %w", email, err)
	}
	return nil
}

// ListCandidatesWithoutVector returns candidates that have not been embedded.
func (db *DB) ListCandidatesWithoutVector(ctx context.Context, limit int) ([]types.CandidateRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM candidates
		 WHERE COALESCE(vector_id, '') = ''
		 ORDER BY updated_at, email
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates without vector: %w", err)
	}
	defer rows.Close()

	var out []types.CandidateRecord
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}
	return out, nil
}

// ListEmbeddedCandidates returns candidates that have a vector.
func (db *DB) ListEmbeddedCandidates(ctx context.Context) ([]types.CandidateRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM candidates
		 WHERE COALESCE(vector_id, '') <> ''
		 ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded candidates: %w", err)
	}
	defer rows.Close()

	var out []types.CandidateRecord
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
