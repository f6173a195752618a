// Package ratelimit provides the process-wide permit that spaces out calls to a shared external backend.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MinInterval is the smallest spacing a Gate accepts.
const MinInterval = 2 * time.Second

// DefaultInterval is the spacing used when none is configured.
const DefaultInterval = 2500 * time.Millisecond

// Gate hands out one permit per interval. Every client that talks to the same
// backend must share a single Gate; callers reserve consecutive slots under a
// lock and then sleep outside of it.
type Gate struct {
	interval time.Duration
	clock    Clock
	last     time.Time // Slot handed to the most recent caller
	issued   bool
	mu       sync.Mutex
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(g *Gate) {
		if c != nil {
			g.clock = c
		}
	}
}

// NewGate creates a Gate enforcing interval between permits.
func NewGate(interval time.Duration, opts ...Option) (*Gate, error) {
	if interval < MinInterval {
		return nil, fmt.Errorf("rate limit interval %s is below the minimum of %s", interval, MinInterval)
	}
	g := &Gate{
		interval: interval,
		clock:    RealClock(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Interval returns the configured spacing.
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// reserve claims the next free slot.
func (g *Gate) reserve() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	slot := g.clock.Now()
	if g.issued {
		if next := g.last.Add(g.interval); next.After(slot) {
			slot = next
		}
	}
	g.last = slot
	g.issued = true
	return slot
}

// Wait blocks until the caller holds a permit and returns the slot it was
// given. A cancelled context returns its error before any slot is claimed.
func (g *Gate) Wait(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	slot := g.reserve()
	if err := g.clock.SleepUntil(ctx, slot); err != nil {
		return time.Time{}, err
	}
	return slot, nil
}
