// Package quality scores enrichment results and drives the enrichment status
// lifecycle of a startup record.
package quality

import (
	"math"
	"strings"

	"github.com/jonathan/startup-matcher/internal/extract"
	"github.com/jonathan/startup-matcher/internal/types"
)

// Bucket thresholds
const (
	ExcellentThreshold = 0.85
	GoodThreshold      = 0.6
	FairThreshold      = 0.35
)

// Score weights. They sum to 1.
const (
	WeightName        = 0.30
	WeightEmail       = 0.40
	WeightLinkedIn    = 0.05
	WeightDescriptive = 0.10
	WeightWebsite     = 0.05
	WeightConfidence  = 0.10
)

// placeholderCap keeps pattern data below the fair threshold.
const placeholderCap = 0.3

// Bucket maps a score to its quality status.
func Bucket(score float64) types.QualityStatus {
	switch {
	case score >= ExcellentThreshold:
		return types.QualityExcellent
	case score >= GoodThreshold:
		return types.QualityGood
	case score >= FairThreshold:
		return types.QualityFair
	case score > 0:
		return types.QualityPoor
	default:
		return types.QualityFailed
	}
}

// Score measures how complete and trustworthy a record's founder data is.
// confidence is the mean extraction confidence of the accepted entities.
func Score(rec *types.StartupRecord, confidence float64) (float64, types.QualityStatus) {
	var score float64
	if len(realNames(rec.FounderNames)) > 0 {
		score += WeightName
	}
	if len(realEmails(rec.FounderEmails)) > 0 {
		score += WeightEmail
	}
	if len(rec.FounderLinkedIns) > 0 {
		score += WeightLinkedIn
	}
	if strings.TrimSpace(rec.Industry) != "" || strings.TrimSpace(rec.Description) != "" {
		score += WeightDescriptive
	}
	if rec.Domain() != "" {
		score += WeightWebsite
	}
	score += WeightConfidence * clamp(confidence)

	if IsPlaceholder(rec) {
		score = min(score, placeholderCap)
	}
	// keep sums like 0.3+0.4+... from drifting across a bucket boundary
	score = math.Round(clamp(score)*1e6) / 1e6
	return score, Bucket(score)
}

// IsPlaceholder reports whether the founder data looks generated rather than
// discovered: no real founder name, or only shared-inbox addresses.
func IsPlaceholder(rec *types.StartupRecord) bool {
	if len(realNames(rec.FounderNames)) == 0 {
		return true
	}
	return len(rec.FounderEmails) > 0 && len(realEmails(rec.FounderEmails)) == 0
}

func realNames(names []string) []string {
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || strings.EqualFold(strings.Fields(n)[0], "team") {
			continue
		}
		out = append(out, n)
	}
	return out
}

func realEmails(emails []string) []string {
	var out []string
	for _, e := range emails {
		if e = strings.TrimSpace(e); e != "" && !extract.IsGenericMailbox(e) {
			out = append(out, e)
		}
	}
	return out
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
