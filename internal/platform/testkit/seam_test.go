package testkit

import (
	"sync"
	"testing"
	"time"
)

var (
	now      = func() string { return "real" }
	attempts = 3
)

func TestSwapRestoresAfterTest(t *testing.T) {
	t.Run("func", func(t *testing.T) {
		Swap(t, &now, func() string { return "fake" })
		if now() != "fake" {
			t.Fatalf("swap not applied")
		}
	})
	t.Run("int", func(t *testing.T) {
		Swap(t, &attempts, 1)
		if attempts != 1 {
			t.Fatalf("attempts = %d", attempts)
		}
	})
	if now() != "real" || attempts != 3 {
		t.Fatalf("seams not restored: %s %d", now(), attempts)
	}
}

func TestSerialDoesNotInterleave(t *testing.T) {
	var (
		mu  sync.Mutex
		log []string
	)
	note := func(s string) {
		mu.Lock()
		log = append(log, s)
		mu.Unlock()
	}
	t.Run("group", func(t *testing.T) {
		for _, name := range []string{"a", "b"} {
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				Serial(t)
				note(name + "+")
				time.Sleep(20 * time.Millisecond)
				note(name + "-")
			})
		}
	})
	if len(log) != 4 || log[0][0] != log[1][0] || log[2][0] != log[3][0] {
		t.Fatalf("interleaved: %v", log)
	}
}
