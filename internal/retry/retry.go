// Package retry models bounded exponential backoff as an explicit state machine.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// ErrInvalidPolicy is returned when a Policy cannot drive any attempt.
var ErrInvalidPolicy = errors.New("retry policy must allow at least one attempt")

// Policy describes how many attempts to make and how long to wait between them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	// Jitter is the fraction of each delay that is randomized, e.g. 0.5 means ±50%.
	Jitter float64
	// MaxDelay caps a single delay. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultPolicy is 3 attempts starting at 1s, doubling, with ±50% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Factor:      2,
		Jitter:      0.5,
	}
}

// Once retries a failed call a single time with no wait.
func Once() Policy {
	return Policy{MaxAttempts: 2}
}

// Validate reports whether the policy can be used.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidPolicy
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("retry jitter %.2f must be within [0, 1]", p.Jitter)
	}
	return nil
}

// Delay returns the wait after the given failed attempt (1-based). r is a
// uniform random value in [0, 1) used for jitter.
func (p Policy) Delay(attempt int, r float64) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	d *= 1 + p.Jitter*(2*r-1)
	return time.Duration(d)
}

// State tracks one sequence of attempts under a Policy.
type State struct {
	policy  Policy
	rand    func() float64
	attempt int
	lastErr error
}

// NewState starts a new attempt sequence. rnd may be nil.
func NewState(p Policy, rnd func() float64) *State {
	if rnd == nil {
		rnd = rand.Float64
	}
	return &State{policy: p, rand: rnd}
}

// Attempts returns how many attempts have been recorded.
func (s *State) Attempts() int { return s.attempt }

// Err returns the most recent recorded failure.
func (s *State) Err() error { return s.lastErr }

// Fail records a failed attempt. It returns the delay before the next attempt
// and false once the sequence is terminal.
func (s *State) Fail(err error) (time.Duration, bool) {
	s.attempt++
	s.lastErr = err
	if s.attempt >= s.policy.MaxAttempts {
		return 0, false
	}
	return s.policy.Delay(s.attempt, s.rand()), true
}

// ExhaustedError reports an operation that failed on every allowed attempt.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Runner executes operations under a Policy.
type Runner struct {
	Policy    Policy
	Retryable func(error) bool
	Sleep     Sleeper
	Rand      func() float64
	Logger    *slog.Logger
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. Exhaustion is reported as an *ExhaustedError naming op.
func (r Runner) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := r.Policy.Validate(); err != nil {
		return err
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	state := NewState(r.Policy, r.Rand)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			if state.Attempts() > 0 {
				logger.Debug("operation succeeded after retry", "op", op, "attempt", state.Attempts()+1)
			}
			return nil
		}
		if r.Retryable != nil && !r.Retryable(err) {
			return err
		}

		delay, more := state.Fail(err)
		if !more {
			return &ExhaustedError{Op: op, Attempts: state.Attempts(), Err: err}
		}
		logger.Debug("operation failed, will retry",
			"op", op, "attempt", state.Attempts(), "max_attempts", r.Policy.MaxAttempts, "delay", delay, "error", err)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}
