package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-signup-verify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimiter(max int, window time.Duration) (*WindowLimiter, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewWindowLimiter(max, window).WithClock(clk.Now), clk
}

func TestReserve_CapsWithinWindow(t *testing.T) {
	l, _ := newLimiter(3, time.Hour)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Reserve(ctx, "ann@x.com"))
	}
	err := l.Reserve(ctx, "ann@x.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimited))

	var rle *domain.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 3, rle.Limit)
	assert.Equal(t, time.Hour, rle.RetryAfter)
}

func TestReserve_RejectedAttemptNotCounted(t *testing.T) {
	l, clk := newLimiter(1, time.Hour)
	ctx := context.Background()
	require.NoError(t, l.Reserve(ctx, "k"))
	for i := 0; i < 5; i++ {
		assert.Error(t, l.Reserve(ctx, "k"))
	}
	clk.Advance(time.Hour + time.Second)
	assert.NoError(t, l.Reserve(ctx, "k"))
}

func TestReserve_WindowResets(t *testing.T) {
	l, clk := newLimiter(3, time.Hour)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Reserve(ctx, "k"))
	}
	clk.Advance(30 * time.Minute)
	assert.Error(t, l.Reserve(ctx, "k"))

	// The window is exclusive of its reset instant.
	clk.Advance(30 * time.Minute)
	assert.Error(t, l.Reserve(ctx, "k"))

	clk.Advance(time.Millisecond)
	assert.NoError(t, l.Reserve(ctx, "k"))
}

func TestReserve_KeysAreIndependent(t *testing.T) {
	l, _ := newLimiter(1, time.Hour)
	ctx := context.Background()
	require.NoError(t, l.Reserve(ctx, "a"))
	assert.NoError(t, l.Reserve(ctx, "b"))
	assert.Error(t, l.Reserve(ctx, "a"))
}

func TestRelease_ReturnsSlot(t *testing.T) {
	l, _ := newLimiter(2, time.Hour)
	ctx := context.Background()
	require.NoError(t, l.Reserve(ctx, "k"))
	require.NoError(t, l.Reserve(ctx, "k"))
	require.NoError(t, l.Release(ctx, "k"))
	assert.NoError(t, l.Reserve(ctx, "k"))
	assert.Error(t, l.Reserve(ctx, "k"))
}

func TestRelease_ToZeroForgetsWindow(t *testing.T) {
	l, clk := newLimiter(1, time.Hour)
	ctx := context.Background()
	require.NoError(t, l.Reserve(ctx, "k"))
	require.NoError(t, l.Release(ctx, "k"))

	clk.Advance(10 * time.Minute)
	require.NoError(t, l.Reserve(ctx, "k"))
	err := l.Reserve(ctx, "k")
	var rle *domain.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, time.Hour, rle.RetryAfter, "window opened by the second reservation")
}

func TestRelease_UnknownKey(t *testing.T) {
	l, _ := newLimiter(1, time.Hour)
	assert.NoError(t, l.Release(context.Background(), "missing"))
}

func TestSweep_RemovesClosedWindows(t *testing.T) {
	l, clk := newLimiter(3, time.Hour)
	ctx := context.Background()
	require.NoError(t, l.Reserve(ctx, "old"))
	clk.Advance(45 * time.Minute)
	require.NoError(t, l.Reserve(ctx, "new"))
	clk.Advance(16 * time.Minute)

	assert.Equal(t, 1, l.Sweep())
	assert.Len(t, l.entries, 1)
	_, ok := l.entries["new"]
	assert.True(t, ok)
}

func TestReserve_ConcurrentNeverExceedsMax(t *testing.T) {
	l := NewWindowLimiter(3, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Reserve(ctx, "k") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, allowed)
}
