// Package breaker implements a keyed circuit breaker. Keys combine the
// operation and the seller so one seller's outage never blocks another
package breaker

import (
	"context"
	stderrs "errors"
	"sync"
	"time"

	"mixshift/internal/platform/clock"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/platform/logger"
)

// State of one key
type State uint8

const (
	// Closed passes calls through
	Closed State = iota
	// Open rejects calls until the timeout elapses
	Open
	// HalfOpen lets a single probe through
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// ErrOpen is returned without invoking the operation while a key is open
var ErrOpen = perr.New(perr.ErrorCodeUnavailable, "circuit breaker open")

// Config tunes every key
type Config struct {
	Threshold int
	Timeout   time.Duration
	// Counts decides which errors trip the breaker; nil counts all but auth and cancellation
	Counts func(error) bool
}

// Snapshot is a point in time view of one key
type Snapshot struct {
	State       State
	Failures    int
	LastFailure time.Time
	OpenUntil   time.Time
}

type entry struct {
	Snapshot
	probing bool
}

// Breaker holds per key state for the life of the process
type Breaker struct {
	mu    sync.Mutex
	cfg   Config
	clock clock.Clock
	keys  map[string]*entry
}

// New returns a Breaker; Threshold and Timeout default to 5 and 1m
func New(cfg Config, c clock.Clock) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Counts == nil {
		cfg.Counts = countByDefault
	}
	if c == nil {
		c = clock.System{}
	}
	return &Breaker{cfg: cfg, clock: c, keys: map[string]*entry{}}
}

func countByDefault(err error) bool {
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !perr.IsAuth(err)
}

// Key builds the per operation, per seller key
func Key(op, seller string) string { return op + ":" + seller }

func (b *Breaker) get(key string) *entry {
	e, ok := b.keys[key]
	if !ok {
		e = &entry{}
		b.keys[key] = e
	}
	return e
}

// Allow reserves a call slot for key or returns ErrOpen
func (b *Breaker) Allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.get(key)
	switch e.State {
	case Closed:
		return nil
	case Open:
		if b.clock.Now().Before(e.OpenUntil) {
			return ErrOpen
		}
		e.State = HalfOpen
		e.probing = true
		logger.Named("breaker").Info().Str("key", key).Msg("half open; probing")
		return nil
	default:
		if e.probing {
			return ErrOpen
		}
		e.probing = true
		return nil
	}
}

// Success records a successful call
func (b *Breaker) Success(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.get(key)
	if e.State == HalfOpen {
		logger.Named("breaker").Info().Str("key", key).Msg("probe succeeded; closing")
	}
	e.State = Closed
	e.Failures = 0
	e.probing = false
}

// Failure records a failed call, opening the key at the threshold or
// immediately when a half open probe fails
func (b *Breaker) Failure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.get(key)
	now := b.clock.Now()
	e.Failures++
	e.LastFailure = now
	if e.State == HalfOpen || e.Failures >= b.cfg.Threshold {
		e.State = Open
		e.OpenUntil = now.Add(b.cfg.Timeout)
		e.probing = false
		logger.Named("breaker").Warn().Str("key", key).Int("failures", e.Failures).
			Time("open_until", e.OpenUntil).Msg("circuit opened")
	}
}

// release frees a probe slot when the call ended with an uncounted error
func (b *Breaker) release(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.get(key).probing = false
}

// Snapshot reports the state for key
func (b *Breaker) Snapshot(key string) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(key).Snapshot
}

// Do runs fn under the breaker for key
func (b *Breaker) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	_, err := Call(ctx, b, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn under the breaker for key and returns its result
func Call[T any](ctx context.Context, b *Breaker, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.Allow(key); err != nil {
		return zero, err
	}
	out, err := fn(ctx)
	switch {
	case err == nil:
		b.Success(key)
	case b.cfg.Counts(err):
		b.Failure(key)
	default:
		b.release(key)
	}
	return out, err
}
