// Package types provides type definitions for the records shared across the enrichment and matching pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ListSeparator joins multi-valued founder fields when they are stored as text.
const ListSeparator = "; "

// EnrichmentStatus is the lifecycle state of a startup's contact enrichment.
type EnrichmentStatus string

// Enrichment statuses
const (
	EnrichmentPending     EnrichmentStatus = "pending"
	EnrichmentInProgress  EnrichmentStatus = "in_progress"
	EnrichmentCompleted   EnrichmentStatus = "completed"
	EnrichmentFailed      EnrichmentStatus = "failed"
	EnrichmentNeedsReview EnrichmentStatus = "needs_review"
)

// QualityStatus is the bucket a quality score falls into.
type QualityStatus string

// Quality buckets, best first
const (
	QualityExcellent QualityStatus = "excellent"
	QualityGood      QualityStatus = "good"
	QualityFair      QualityStatus = "fair"
	QualityPoor      QualityStatus = "poor"
	QualityFailed    QualityStatus = "failed"
)

// StartupRecord is a startup along with everything enrichment has learned about it.
type StartupRecord struct {
	Name          string `json:"name"`
	Industry      string `json:"industry,omitempty"`
	Description   string `json:"description,omitempty"`
	Location      string `json:"location,omitempty"`
	FundingStage  string `json:"funding_stage,omitempty"`
	FundingAmount string `json:"funding_amount,omitempty"`
	FundingDate   string `json:"funding_date,omitempty"`
	Website       string `json:"website,omitempty"`
	YCBatch       string `json:"yc_batch,omitempty"`
	CompanySlug   string `json:"company_slug,omitempty"`

	FounderNames     []string `json:"founder_names,omitempty"`
	FounderEmails    []string `json:"founder_emails,omitempty"`
	FounderLinkedIns []string `json:"founder_linkedins,omitempty"`

	SourceURL     string `json:"source_url,omitempty"`
	SourceContent string `json:"source_content,omitempty"`
	DataSource    string `json:"data_source,omitempty"`

	NeedsEnrichment     bool             `json:"needs_enrichment"`
	EnrichmentStatus    EnrichmentStatus `json:"enrichment_status"`
	QualityScore        float64          `json:"quality_score"`
	QualityStatus       QualityStatus    `json:"quality_status"`
	RetryCount          int              `json:"retry_count"`
	EnrichmentStartedAt *time.Time       `json:"enrichment_started_at,omitempty"`
	UpdatedAt           time.Time        `json:"updated_at"`

	// VectorID is empty until the startup has been embedded.
	VectorID string `json:"vector_id,omitempty"`
}

// Domain returns the bare host of the startup's website, or "" when unknown.
func (s *StartupRecord) Domain() string {
	return NormalizeDomain(s.Website)
}

// EmbeddingText builds the text that represents the startup in the vector space.
func (s *StartupRecord) EmbeddingText() string {
	var sb strings.Builder
	sb.WriteString(s.Name)
	if s.Industry != "" {
		sb.WriteString("\nIndustry: " + s.Industry)
	}
	if s.Location != "" {
		sb.WriteString("\nLocation: " + s.Location)
	}
	if s.FundingStage != "" || s.FundingAmount != "" {
		sb.WriteString(fmt.Sprintf("\nFunding: %s %s", s.FundingStage, s.FundingAmount))
	}
	if s.Description != "" {
		sb.WriteString("\n" + s.Description)
	}
	return strings.TrimSpace(sb.String())
}

// NormalizeDomain reduces a URL or host to a lowercase bare domain without "www.".
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(parsed.Hostname(), "www.")
	if !strings.Contains(host, ".") {
		return ""
	}
	return host
}

// JoinList encodes an ordered list for a delimited text column.
func JoinList(values []string) string {
	return strings.Join(values, ListSeparator)
}

// SplitList decodes a delimited text column, dropping empty entries.
func SplitList(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.Split(text, strings.TrimSpace(ListSeparator))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
