package modkit

import (
	"testing"
	"time"

	"mixshift/internal/platform/clock"
)

func TestDepsNow(t *testing.T) {
	t.Parallel()
	if _, ok := (Deps{}).Now().(clock.System); !ok {
		t.Fatalf("zero deps should fall back to the system clock")
	}
	fc := clock.NewFake(time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC))
	if got := (Deps{Clock: fc}).Now().Now(); !got.Equal(fc.Now()) {
		t.Fatalf("Now = %v", got)
	}
}
