package db

import (
	"context"
	"fmt"

	"github.com/jonathan/startup-matcher/internal/types"
)

// -----------------------------------------------------------------------------
// Match Methods
// -----------------------------------------------------------------------------

// UpsertMatch writes the score for a candidate/startup pair, replacing any earlier one.
func (db *DB) UpsertMatch(ctx context.Context, m *types.MatchRecord) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO matches (candidate_email, startup_name, score, computed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (candidate_email, startup_name) DO UPDATE SET score = $3, computed_at = $4`,
		m.CandidateEmail, m.StartupName, m.Score, m.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert match %s/%s: %w", m.CandidateEmail, m.StartupName, err)
	}
	return nil
}

// DeleteMatch removes the pair if present.
func (db *DB) DeleteMatch(ctx context.Context, candidateEmail, startupName string) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM matches WHERE candidate_email = $1 AND startup_name = $2`,
		candidateEmail, startupName,
	)
	if err != nil {
		return fmt.Errorf("failed to delete match %s/%s: %w", candidateEmail, startupName, err)
	}
	return nil
}

// ListMatches returns a candidate's matches, best first.
func (db *DB) ListMatches(ctx context.Context, candidateEmail string) ([]types.MatchRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT candidate_email, startup_name, score, computed_at
		 FROM matches WHERE candidate_email = $1
		 ORDER BY score DESC, startup_name`,
		candidateEmail,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var out []types.MatchRecord
	for rows.Next() {
		var m types.MatchRecord
		if err := rows.Scan(&m.CandidateEmail, &m.StartupName, &m.Score, &m.ComputedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}
	return out, nil
}
