// Package clock supplies the current time and the waits taken between
// provider calls. Every wait is logged with the reason it was taken
package clock

import (
	"context"
	"sync"
	"time"

	"mixshift/internal/platform/logger"
)

// Clock reports the current time
type Clock interface {
	Now() time.Time
}

// System is the wall clock
type System struct{}

// Now returns time.Now
func (System) Now() time.Time { return time.Now() }

// Fake is a manually advanced clock for tests
type Fake struct {
	mu sync.Mutex
	t  time.Time
}

// NewFake returns a Fake pinned at t
func NewFake(t time.Time) *Fake { return &Fake{t: t} }

// Now returns the pinned time
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Advance moves the clock forward by d
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// Set pins the clock at t
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

// Sleeper suspends the caller
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration, reason string) error
}

// Delay is the production Sleeper
type Delay struct{}

// Sleep waits for d or until ctx is done and logs why it waited
func (Delay) Sleep(ctx context.Context, d time.Duration, reason string) error {
	if d <= 0 {
		return nil
	}
	logger.C(ctx).Debug().Str("reason", reason).Dur("delay", d).Msg("waiting")
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait is one recorded call to a Recorder
type Wait struct {
	D      time.Duration
	Reason string
}

// Recorder is a Sleeper that never blocks. When Clock is a *Fake it is
// advanced by each wait so time based components observe the delay
type Recorder struct {
	mu    sync.Mutex
	Clock *Fake
	Waits []Wait
}

// Sleep records the wait and returns immediately unless ctx is already done
func (r *Recorder) Sleep(ctx context.Context, d time.Duration, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.Waits = append(r.Waits, Wait{D: d, Reason: reason})
	r.mu.Unlock()
	if r.Clock != nil && d > 0 {
		r.Clock.Advance(d)
	}
	return nil
}

// Total sums every recorded wait
func (r *Recorder) Total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, w := range r.Waits {
		sum += w.D
	}
	return sum
}

// Backoff maps a zero based attempt number to a wait
type Backoff interface {
	For(attempt int) time.Duration
}

// Fixed waits the same duration every attempt
type Fixed time.Duration

// For returns the fixed delay
func (f Fixed) For(int) time.Duration { return time.Duration(f) }

// Linear grows by Step per attempt from Base and never exceeds Max:
// min(Base + attempt*Step, Max)
type Linear struct {
	Base time.Duration
	Step time.Duration
	Max  time.Duration
}

// For returns the capped linear delay for attempt
func (l Linear) For(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := l.Base + time.Duration(attempt)*l.Step
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}
