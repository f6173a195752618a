package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGate_RejectsShortInterval(t *testing.T) {
	_, err := NewGate(500 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below the minimum")

	g, err := NewGate(DefaultInterval)
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, g.Interval())
}

func TestGate_FirstPermitIsImmediate(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	g, err := NewGate(DefaultInterval, WithClock(clock))
	require.NoError(t, err)

	slot, err := g.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start, slot)
	assert.Equal(t, start, clock.Now())
}

func TestGate_SequentialPermitsAreSpaced(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	g, err := NewGate(DefaultInterval, WithClock(clock))
	require.NoError(t, err)

	var issued []time.Time
	for i := 0; i < 4; i++ {
		_, err := g.Wait(context.Background())
		require.NoError(t, err)
		issued = append(issued, clock.Now())
	}

	for i := 1; i < len(issued); i++ {
		assert.GreaterOrEqual(t, issued[i].Sub(issued[i-1]), DefaultInterval)
	}
}

func TestGate_IdleTimeIsNotBanked(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	g, err := NewGate(DefaultInterval, WithClock(clock))
	require.NoError(t, err)

	_, err = g.Wait(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	slot, err := g.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Minute), slot)

	slot, err = g.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Minute).Add(DefaultInterval), slot)
}

func TestGate_ConcurrentCallersGetDistinctSlots(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	g, err := NewGate(3*time.Second, WithClock(clock))
	require.NoError(t, err)

	const callers = 16
	var (
		mu    sync.Mutex
		slots []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := g.Wait(context.Background())
			if err != nil {
				t.Errorf("Wait failed: %v", err)
				return
			}
			mu.Lock()
			slots = append(slots, slot)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, slots, callers)
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	for i := 1; i < len(slots); i++ {
		assert.GreaterOrEqual(t, slots[i].Sub(slots[i-1]), 3*time.Second, "slots %d and %d too close", i-1, i)
	}
}

func TestGate_CancelledContext(t *testing.T) {
	g, err := NewGate(DefaultInterval, WithClock(NewFakeClock(time.Now())))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = g.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRealClock_SleepUntilPast(t *testing.T) {
	c := RealClock()
	err := c.SleepUntil(context.Background(), time.Now().Add(-time.Second))
	assert.NoError(t, err)
}
