package types

import (
	"strings"
	"time"
)

// CandidateRecord is a job candidate delivered by the upload ingress.
type CandidateRecord struct {
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Skills      []string  `json:"skills,omitempty"`
	DerivedText string    `json:"derived_text,omitempty"`
	VectorID    string    `json:"vector_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EmbeddingText builds the text that represents the candidate in the vector space.
func (c *CandidateRecord) EmbeddingText() string {
	var parts []string
	if c.Summary != "" {
		parts = append(parts, c.Summary)
	}
	if len(c.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(c.Skills, ", "))
	}
	if c.DerivedText != "" {
		parts = append(parts, c.DerivedText)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// MatchRecord is a scored edge between one candidate and one startup.
type MatchRecord struct {
	CandidateEmail string    `json:"candidate_email"`
	StartupName    string    `json:"startup_name"`
	Score          float64   `json:"score"`
	ComputedAt     time.Time `json:"computed_at"`
}
