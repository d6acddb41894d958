package testkit

import (
	"sync"
	"testing"
)

// seams guards package level variables that tests replace
var seams sync.Mutex

// Swap sets *target to v until the test ends. Tests that swap shared seams
// should call Serial first
func Swap[T any](t *testing.T, target *T, v T) {
	t.Helper()
	old := *target
	*target = v
	t.Cleanup(func() { *target = old })
}

// Serial holds the seam lock until the test ends
func Serial(t *testing.T) {
	t.Helper()
	seams.Lock()
	t.Cleanup(seams.Unlock)
}
