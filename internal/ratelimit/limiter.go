// Package ratelimit implements fixed-window admission control keyed by
// client identity.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBackendUnavailable is returned when the counter store cannot be reached.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// Result describes the outcome of one admission check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// ResetAtEpochMs returns the window expiry in Unix milliseconds.
func (r Result) ResetAtEpochMs() int64 {
	return r.ResetAt.UnixMilli()
}

// RetryAfter returns the whole seconds a rejected caller should wait, never
// less than one.
func (r Result) RetryAfter(now time.Time) int {
	d := r.ResetAt.Sub(now)
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter checks and consumes admission for a key.
type Limiter interface {
	// CheckAndConsume admits the request when fewer than max requests were
	// admitted in the key's current window.
	CheckAndConsume(ctx context.Context, key string, window time.Duration, max int) (Result, error)

	// Reset drops the counter for key.
	Reset(ctx context.Context, key string) error
}

// counter is one key's fixed window.
type counter struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
	swept     bool
}

// MemoryLimiter keeps counters in process memory.
type MemoryLimiter struct {
	counters sync.Map // key -> *counter
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLimiter) { m.now = now }
}

// NewMemoryLimiter creates an in-memory limiter. A positive sweepEvery starts
// a goroutine that drops expired counters; call Stop to end it.
func NewMemoryLimiter(sweepEvery time.Duration, opts ...MemoryOption) *MemoryLimiter {
	m := &MemoryLimiter{
		now:  time.Now,
		stop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if sweepEvery > 0 {
		go m.sweepLoop(sweepEvery)
	}
	return m
}

// CheckAndConsume implements Limiter.
func (m *MemoryLimiter) CheckAndConsume(_ context.Context, key string, window time.Duration, max int) (Result, error) {
	now := m.now()

	c := m.lockCounter(key)
	defer c.mu.Unlock()

	if c.count == 0 || !now.Before(c.expiresAt) {
		c.count = 1
		c.expiresAt = now.Add(window)
		return Result{Allowed: true, Limit: max, Remaining: remaining(max, 1), ResetAt: c.expiresAt}, nil
	}

	if c.count >= max {
		return Result{Allowed: false, Limit: max, Remaining: 0, ResetAt: c.expiresAt}, nil
	}

	c.count++
	return Result{Allowed: true, Limit: max, Remaining: remaining(max, c.count), ResetAt: c.expiresAt}, nil
}

// lockCounter returns the live counter for key with its mutex held. A
// counter removed by Sweep is never reused.
func (m *MemoryLimiter) lockCounter(key string) *counter {
	for {
		v, _ := m.counters.LoadOrStore(key, &counter{})
		c := v.(*counter)
		c.mu.Lock()
		if !c.swept {
			return c
		}
		c.mu.Unlock()
	}
}

// Reset implements Limiter. The dropped counter is marked swept under its
// lock so a caller already holding it retries with a fresh one.
func (m *MemoryLimiter) Reset(_ context.Context, key string) error {
	v, ok := m.counters.Load(key)
	if !ok {
		return nil
	}
	c := v.(*counter)
	c.mu.Lock()
	c.swept = true
	m.counters.CompareAndDelete(key, v)
	c.mu.Unlock()
	return nil
}

// Len reports how many keys currently hold a counter.
func (m *MemoryLimiter) Len() int {
	n := 0
	m.counters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep drops counters whose window has expired.
func (m *MemoryLimiter) Sweep() {
	now := m.now()
	m.counters.Range(func(k, v any) bool {
		c := v.(*counter)
		c.mu.Lock()
		if !now.Before(c.expiresAt) {
			c.swept = true
			m.counters.CompareAndDelete(k, v)
		}
		c.mu.Unlock()
		return true
	})
}

// Stop ends the sweeper goroutine. Safe to call more than once.
func (m *MemoryLimiter) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *MemoryLimiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stop:
			return
		}
	}
}

func remaining(max, count int) int {
	if count >= max {
		return 0
	}
	return max - count
}
