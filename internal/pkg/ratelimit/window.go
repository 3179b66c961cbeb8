package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-signup-verify/internal/domain"
)

type entry struct {
	count   int
	resetAt time.Time
}

// WindowLimiter caps reservations per key within a fixed window that opens
// on the first reservation. State is process-local and lost on restart.
type WindowLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewWindowLimiter allows max reservations per key per window.
func NewWindowLimiter(max int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		entries: make(map[string]*entry),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (l *WindowLimiter) WithClock(now func() time.Time) *WindowLimiter {
	l.now = now
	return l
}

// Reserve takes one slot for key, or returns a *domain.RateLimitError
// without consuming anything when the window is exhausted.
func (l *WindowLimiter) Reserve(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &entry{resetAt: now.Add(l.window)}
		l.entries[key] = e
	}
	if e.count >= l.max {
		return &domain.RateLimitError{Limit: l.max, RetryAfter: e.resetAt.Sub(now)}
	}
	e.count++
	return nil
}

// Release gives back a slot taken by Reserve. A key that drops to zero is
// forgotten so its next reservation opens a fresh window.
func (l *WindowLimiter) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return nil
	}
	e.count--
	if e.count <= 0 {
		delete(l.entries, key)
	}
	return nil
}

// Sweep drops entries whose window has closed and returns how many were removed.
func (l *WindowLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for k, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (l *WindowLimiter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("swept resend limiter", "removed", n)
			}
		}
	}
}
