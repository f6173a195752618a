package quality

import (
	"fmt"
	"time"

	"github.com/jonathan/startup-matcher/internal/types"
)

// Event is something that happens to a record during its enrichment lifecycle.
type Event string

// Lifecycle events
const (
	// EventStart begins a pass on a pending record.
	EventStart Event = "start"
	// EventForceStart begins a pass regardless of the settled status.
	EventForceStart Event = "force_start"
	// EventAccepted ends a pass that met the acceptance criterion.
	EventAccepted Event = "accepted"
	// EventRejected ends a pass that exhausted every tier.
	EventRejected Event = "rejected"
	// EventReset queues a failed or low-quality record for another pass.
	EventReset Event = "reset"
	// EventRecover returns an abandoned in-progress record to pending.
	EventRecover Event = "recover"
)

// NextStatus returns the status that follows current when ev happens. quality
// is the bucket of the pass that just finished, or of the stored record for
// EventReset.
func NextStatus(current types.EnrichmentStatus, ev Event, quality types.QualityStatus) (types.EnrichmentStatus, error) {
	switch ev {
	case EventStart:
		if current == types.EnrichmentPending {
			return types.EnrichmentInProgress, nil
		}
	case EventForceStart:
		if current != types.EnrichmentInProgress {
			return types.EnrichmentInProgress, nil
		}
	case EventAccepted:
		if current == types.EnrichmentInProgress {
			if belowFair(quality) {
				return types.EnrichmentNeedsReview, nil
			}
			return types.EnrichmentCompleted, nil
		}
	case EventRejected:
		if current == types.EnrichmentInProgress {
			return types.EnrichmentFailed, nil
		}
	case EventReset:
		switch current {
		case types.EnrichmentFailed, types.EnrichmentNeedsReview:
			return types.EnrichmentPending, nil
		case types.EnrichmentCompleted:
			if belowFair(quality) {
				return types.EnrichmentPending, nil
			}
		}
	case EventRecover:
		if current == types.EnrichmentInProgress {
			return types.EnrichmentPending, nil
		}
	}
	return current, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, current)
}

func belowFair(q types.QualityStatus) bool {
	return q == types.QualityPoor || q == types.QualityFailed
}

// Settled reports whether a pass on rec would be a no-op without force.
func Settled(rec *types.StartupRecord) bool {
	return rec.EnrichmentStatus == types.EnrichmentCompleted
}

// Begin moves rec into a pass. Force restarts settled records.
func Begin(rec *types.StartupRecord, force bool, now time.Time) error {
	ev := EventStart
	if force {
		ev = EventForceStart
	}
	next, err := NextStatus(rec.EnrichmentStatus, ev, rec.QualityStatus)
	if err != nil {
		return err
	}
	rec.EnrichmentStatus = next
	rec.EnrichmentStartedAt = &now
	return nil
}

// Finish scores rec after a pass and sets its final status. A rejected pass
// always scores 0.
func Finish(rec *types.StartupRecord, accepted bool, confidence float64) error {
	score, bucket := 0.0, types.QualityFailed
	ev := EventRejected
	if accepted {
		score, bucket = Score(rec, confidence)
		ev = EventAccepted
	}
	next, err := NextStatus(rec.EnrichmentStatus, ev, bucket)
	if err != nil {
		return err
	}
	rec.QualityScore = score
	rec.QualityStatus = bucket
	rec.EnrichmentStatus = next
	rec.NeedsEnrichment = next != types.EnrichmentCompleted
	rec.EnrichmentStartedAt = nil
	return nil
}

// Policy bounds how often and how long records are retried.
type Policy struct {
	MaxRetries int
	StaleAfter time.Duration
}

// DefaultPolicy allows three retries and recovers passes older than 30 minutes.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, StaleAfter: 30 * time.Minute}
}

// NeedsRetry is the selection criterion for another enrichment pass: failed or
// under review, or completed with poor quality, with retries left.
func (p Policy) NeedsRetry(rec *types.StartupRecord) bool {
	if rec.RetryCount >= p.MaxRetries {
		return false
	}
	switch rec.EnrichmentStatus {
	case types.EnrichmentFailed, types.EnrichmentNeedsReview:
		return true
	case types.EnrichmentCompleted:
		return belowFair(rec.QualityStatus)
	}
	return false
}

// Reset queues rec for another pass and counts the retry.
func (p Policy) Reset(rec *types.StartupRecord) error {
	if rec.RetryCount >= p.MaxRetries {
		return fmt.Errorf("%w: %s after %d retries", ErrRetryExhausted, rec.Name, rec.RetryCount)
	}
	next, err := NextStatus(rec.EnrichmentStatus, EventReset, rec.QualityStatus)
	if err != nil {
		return err
	}
	rec.EnrichmentStatus = next
	rec.NeedsEnrichment = true
	rec.RetryCount++
	return nil
}

// IsStale reports whether an in-progress pass on rec was abandoned.
func (p Policy) IsStale(rec *types.StartupRecord, now time.Time) bool {
	if rec.EnrichmentStatus != types.EnrichmentInProgress {
		return false
	}
	if rec.EnrichmentStartedAt == nil {
		return true
	}
	return now.Sub(*rec.EnrichmentStartedAt) > p.StaleAfter
}

// StaleCutoff is the start time before which an in-progress pass counts as abandoned.
func (p Policy) StaleCutoff(now time.Time) time.Time {
	return now.Add(-p.StaleAfter)
}
