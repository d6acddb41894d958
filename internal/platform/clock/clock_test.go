package clock

import (
	"context"
	"testing"
	"time"
)

func TestLinearBound(t *testing.T) {
	t.Parallel()
	l := Linear{Base: 30 * time.Second, Step: 15 * time.Second, Max: 2 * time.Minute}
	prev := time.Duration(-1)
	for a := 0; a < 50; a++ {
		want := l.Base + time.Duration(a)*l.Step
		if want > l.Max {
			want = l.Max
		}
		got := l.For(a)
		if got != want {
			t.Fatalf("For(%d) = %v, want %v", a, got, want)
		}
		if got < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", a, got, prev)
		}
		if got > l.Max {
			t.Fatalf("delay %v exceeds max %v", got, l.Max)
		}
		prev = got
	}
	if l.For(-3) != l.Base {
		t.Fatalf("negative attempt should clamp to base")
	}
}

func TestFixed(t *testing.T) {
	t.Parallel()
	f := Fixed(5 * time.Second)
	if f.For(0) != 5*time.Second || f.For(9) != 5*time.Second {
		t.Fatalf("fixed backoff must not grow")
	}
}

func TestRecorderAdvancesFake(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	fc := NewFake(start)
	r := &Recorder{Clock: fc}
	ctx := context.Background()

	_ = r.Sleep(ctx, time.Minute, "initial")
	_ = r.Sleep(ctx, 30*time.Second, "status backoff")
	if got := fc.Now().Sub(start); got != 90*time.Second {
		t.Fatalf("clock advanced %v, want 90s", got)
	}
	if r.Total() != 90*time.Second || len(r.Waits) != 2 || r.Waits[1].Reason != "status backoff" {
		t.Fatalf("waits = %+v", r.Waits)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := r.Sleep(cctx, time.Second, "late"); err == nil {
		t.Fatalf("expected ctx error")
	}
}

func TestDelayHonorsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (Delay{}).Sleep(ctx, time.Hour, "never"); err == nil {
		t.Fatalf("expected cancellation")
	}
	if err := (Delay{}).Sleep(context.Background(), 0, "zero"); err != nil {
		t.Fatalf("zero delay: %v", err)
	}
}
