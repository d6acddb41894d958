// Package ratelimit bounds calls per key with a fixed window counter.
// Outbound provider calls wait for the next window; http callers are
// rejected. Both share the same counter
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mixshift/internal/platform/clock"
	perr "mixshift/internal/platform/errors"
)

// Policy selects how an exhausted window is enforced
type Policy uint8

const (
	// Wait suspends the caller until the window resets
	Wait Policy = iota
	// Reject fails fast with a too many requests error
	Reject
)

// Config is points per window
type Config struct {
	Points int
	Window time.Duration
}

var errTooMany = perr.New(perr.ErrorCodeTooManyRequests, "rate limit exceeded")

// ExceededError reports when the key may try again
type ExceededError struct {
	Key     string
	RetryIn time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s; retry in %s", e.Key, e.RetryIn)
}

// Unwrap exposes the coded error so perr.CodeOf sees TooManyRequests
func (e *ExceededError) Unwrap() error { return errTooMany }

type window struct {
	start time.Time
	count int
}

// Limiter holds per key windows for the life of the process
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	clock   clock.Clock
	sleeper clock.Sleeper
	windows map[string]*window
	swept   time.Time
}

// New returns a Limiter; Points and Window default to 60 per minute
func New(cfg Config, c clock.Clock, s clock.Sleeper) *Limiter {
	if cfg.Points <= 0 {
		cfg.Points = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if c == nil {
		c = clock.System{}
	}
	if s == nil {
		s = clock.Delay{}
	}
	return &Limiter{cfg: cfg, clock: c, sleeper: s, windows: map[string]*window{}}
}

// take consumes one point for key, or reports how long until the window resets
func (l *Limiter) take(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	l.sweep(now)
	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.cfg.Window)) {
		w = &window{start: now}
		l.windows[key] = w
	}
	if w.count < l.cfg.Points {
		w.count++
		return true, 0
	}
	return false, w.start.Add(l.cfg.Window).Sub(now)
}

// sweep drops expired windows at most once per window length so keys that
// stop calling do not pin memory. Caller holds mu
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.cfg.Window {
		return
	}
	l.swept = now
	for k, w := range l.windows {
		if !now.Before(w.start.Add(l.cfg.Window)) {
			delete(l.windows, k)
		}
	}
}

// Allow takes a point or returns *ExceededError
func (l *Limiter) Allow(key string) error {
	if ok, in := l.take(key); !ok {
		return &ExceededError{Key: key, RetryIn: in}
	}
	return nil
}

// Wait blocks until a point is available for key or ctx ends
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		ok, in := l.take(key)
		if ok {
			return nil
		}
		if err := l.sleeper.Sleep(ctx, in, "rate limit window for "+key); err != nil {
			return err
		}
	}
}

// Check enforces the window for key using p
func (l *Limiter) Check(ctx context.Context, key string, p Policy) error {
	if p == Reject {
		return l.Allow(key)
	}
	return l.Wait(ctx, key)
}

// Remaining reports points left in the current window for key
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok || !l.clock.Now().Before(w.start.Add(l.cfg.Window)) {
		return l.cfg.Points
	}
	return l.cfg.Points - w.count
}
