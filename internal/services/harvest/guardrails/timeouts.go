// Package guardrails holds cross cutting safety helpers for harvest runs
package guardrails

import (
	"context"
	"time"
)

// Timeouts bounds one orchestrator run. Zero values mean no extra timeout at that level
type Timeouts struct {
	// Run is the budget for one seller, every unit and type included
	Run time.Duration

	// Call caps a single provider call, token exchange included
	Call time.Duration

	// Import caps one import of a downloaded artifact
	Import time.Duration
}

// ForRun returns a context limited by the run budget
func ForRun(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Run)
}

// ForCall returns a sub context for one provider call
func ForCall(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Call)
}

// ForImport returns a sub context for one import
func ForImport(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Import)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout takes the tighter of d and the parent remainder; it never extends the parent
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
