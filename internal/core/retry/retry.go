// Package retry runs an operation up to a bounded number of attempts with a
// linear capped backoff between them
package retry

import (
	"context"
	stderrs "errors"
	"time"

	"mixshift/internal/platform/clock"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/platform/logger"
)

// Outcome is how an execution ended
type Outcome uint8

const (
	// Succeeded means the operation returned without error
	Succeeded Outcome = iota
	// Failed means the operation signalled a terminal condition
	Failed
	// Exhausted means every attempt failed with a retryable error
	Exhausted
	// Skipped means a precondition was not met; nothing is counted or notified
	Skipped
	// Aborted means ctx ended during an attempt or while waiting between attempts
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Exhausted:
		return "exhausted"
	case Skipped:
		return "skipped"
	default:
		return "aborted"
	}
}

type kind uint8

const (
	kindAgain kind = iota + 1
	kindFatal
	kindSkip
)

type marked struct {
	kind kind
	err  error
}

func (m *marked) Error() string { return m.err.Error() }
func (m *marked) Unwrap() error { return m.err }

// Again marks err as retryable regardless of its code, e.g. a report that is still processing
func Again(err error) error { return &marked{kind: kindAgain, err: err} }

// Fatal marks err as terminal
func Fatal(err error) error { return &marked{kind: kindFatal, err: err} }

// Skip marks err as an unmet precondition
func Skip(err error) error { return &marked{kind: kindSkip, err: err} }

// IsSkip reports whether err was produced by Skip
func IsSkip(err error) bool { return kindOf(err) == kindSkip }

func kindOf(err error) kind {
	var m *marked
	if stderrs.As(err, &m) {
		return m.kind
	}
	return 0
}

// classify maps an error to the outcome it would produce on its own
func classify(err error) Outcome {
	switch kindOf(err) {
	case kindAgain:
		return Exhausted
	case kindFatal:
		return Failed
	case kindSkip:
		return Skipped
	}
	if perr.Retryable(err) {
		return Exhausted
	}
	return Failed
}

// Attempt is passed to every invocation. N starts at 1
type Attempt struct {
	N       int
	Elapsed time.Duration
}

// Policy bounds one execution
type Policy struct {
	Name        string
	MaxAttempts int
	Backoff     clock.Backoff
}

// Report describes a finished execution that did not succeed
type Report struct {
	Policy   string
	Outcome  Outcome
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Result is what Do returns
type Result[T any] struct {
	Value    T
	Outcome  Outcome
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Engine carries the clock and sleeper shared by every policy
type Engine struct {
	clock   clock.Clock
	sleeper clock.Sleeper
}

// NewEngine builds an Engine; nil arguments mean wall time and real sleeps
func NewEngine(c clock.Clock, s clock.Sleeper) *Engine {
	if c == nil {
		c = clock.System{}
	}
	if s == nil {
		s = clock.Delay{}
	}
	return &Engine{clock: c, sleeper: s}
}

// Do invokes op until it succeeds, fails terminally, is skipped or runs out
// of attempts. After a retryable failure on attempt n the engine waits
// Backoff.For(n-1). onExhausted runs once for Failed and Exhausted outcomes
func Do[T any](ctx context.Context, e *Engine, p Policy, op func(context.Context, Attempt) (T, error), onExhausted func(context.Context, Report)) Result[T] {
	maxAttempts := max(p.MaxAttempts, 1)
	backoff := p.Backoff
	if backoff == nil {
		backoff = clock.Fixed(0)
	}
	log := logger.C(ctx).With().Str("op", p.Name).Logger()
	start := e.clock.Now()

	var res Result[T]
	for n := 1; n <= maxAttempts; n++ {
		elapsed := e.clock.Now().Sub(start)
		v, err := op(ctx, Attempt{N: n, Elapsed: elapsed})
		res.Attempts = n
		res.Elapsed = e.clock.Now().Sub(start)
		if err == nil {
			res.Value, res.Outcome, res.Err = v, Succeeded, nil
			log.Debug().Int("attempt", n).Dur("elapsed", res.Elapsed).Msg("attempt succeeded")
			return res
		}
		res.Value, res.Err = v, err
		if cerr := ctx.Err(); cerr != nil {
			res.Outcome, res.Err = Aborted, cerr
			log.Info().Int("attempt", n).Err(err).Msg("attempt aborted")
			return res
		}
		res.Outcome = classify(err)

		switch res.Outcome {
		case Skipped:
			log.Info().Int("attempt", n).Err(err).Msg("attempt skipped")
			res.Attempts = 0
			return res
		case Failed:
			log.Warn().Int("attempt", n).Err(err).Msg("attempt failed terminally")
			notify(ctx, onExhausted, p, res)
			return res
		}

		log.Info().Int("attempt", n).Int("max_attempts", maxAttempts).Err(err).Msg("attempt failed; will retry")
		if n == maxAttempts {
			break
		}
		if serr := e.sleeper.Sleep(ctx, backoff.For(n-1), p.Name+" backoff"); serr != nil {
			res.Outcome, res.Err = Aborted, serr
			return res
		}
	}

	res.Outcome = Exhausted
	log.Warn().Int("attempts", res.Attempts).Err(res.Err).Msg("attempts exhausted")
	notify(ctx, onExhausted, p, res)
	return res
}

func notify[T any](ctx context.Context, fn func(context.Context, Report), p Policy, r Result[T]) {
	if fn == nil {
		return
	}
	fn(ctx, Report{Policy: p.Name, Outcome: r.Outcome, Attempts: r.Attempts, Elapsed: r.Elapsed, Err: r.Err})
}
