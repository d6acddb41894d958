package breaker

import (
	"context"
	"testing"
	"time"

	"mixshift/internal/platform/clock"
	perr "mixshift/internal/platform/errors"
)

var errBoom = perr.New(perr.ErrorCodeUpstream, "503")

func TestOpensAfterThresholdAndShortCircuits(t *testing.T) {
	t.Parallel()
	fc := clock.NewFake(time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC))
	b := New(Config{Threshold: 3, Timeout: time.Minute}, fc)
	ctx := context.Background()
	key := Key("getReport", "A1")

	calls := 0
	fail := func(context.Context) error { calls++; return errBoom }
	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, key, fail)
	}
	if s := b.Snapshot(key); s.State != Open || s.Failures != 3 {
		t.Fatalf("snapshot = %+v", s)
	}

	if err := b.Do(ctx, key, fail); err != ErrOpen {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if calls != 3 {
		t.Fatalf("operation invoked while open: calls=%d", calls)
	}

	// other sellers are unaffected
	if err := b.Do(ctx, Key("getReport", "B2"), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("independent key blocked: %v", err)
	}
}

func TestHalfOpenSingleProbe(t *testing.T) {
	t.Parallel()
	fc := clock.NewFake(time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC))
	b := New(Config{Threshold: 1, Timeout: time.Minute}, fc)
	key := Key("createReport", "A1")

	b.Failure(key)
	fc.Advance(59 * time.Second)
	if err := b.Allow(key); err != ErrOpen {
		t.Fatalf("before timeout: %v", err)
	}
	fc.Advance(time.Second)
	if err := b.Allow(key); err != nil {
		t.Fatalf("probe should be allowed: %v", err)
	}
	if err := b.Allow(key); err != ErrOpen {
		t.Fatalf("second probe must be rejected while the first is in flight: %v", err)
	}

	// failed probe re-opens with a fresh timeout
	b.Failure(key)
	if s := b.Snapshot(key); s.State != Open || !s.OpenUntil.Equal(fc.Now().Add(time.Minute)) {
		t.Fatalf("snapshot after failed probe = %+v", s)
	}

	fc.Advance(time.Minute)
	if err := b.Do(context.Background(), key, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if s := b.Snapshot(key); s.State != Closed || s.Failures != 0 {
		t.Fatalf("successful probe should close, got %+v", s)
	}
}

func TestSuccessResetsCounter(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 2}, clock.NewFake(time.Now()))
	key := Key("download", "A1")
	b.Failure(key)
	b.Success(key)
	b.Failure(key)
	if s := b.Snapshot(key); s.State != Closed || s.Failures != 1 {
		t.Fatalf("snapshot = %+v", s)
	}
}

func TestAuthErrorsDoNotTrip(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1}, clock.NewFake(time.Now()))
	key := Key("getReport", "A1")
	_, err := Call(context.Background(), b, key, func(context.Context) (int, error) {
		return 0, perr.New(perr.ErrorCodeUnauthorized, "401")
	})
	if !perr.IsAuth(err) {
		t.Fatalf("err = %v", err)
	}
	if s := b.Snapshot(key); s.State != Closed || s.Failures != 0 {
		t.Fatalf("auth failure tripped breaker: %+v", s)
	}
	if got, err := Call(context.Background(), b, key, func(context.Context) (int, error) { return 7, nil }); err != nil || got != 7 {
		t.Fatalf("Call = %d, %v", got, err)
	}
}
