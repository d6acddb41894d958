// Package testkit holds assertions shared by the unit tests
package testkit

import (
	"fmt"
	"strings"
	"testing"

	perr "mixshift/internal/platform/errors"
)

// MustPanic fails unless fn panics and returns the recovered value
func MustPanic(t *testing.T, fn func()) (v any) {
	t.Helper()
	defer func() {
		v = recover()
		if v == nil {
			t.Fatalf("expected panic, got none")
		}
	}()
	fn()
	return nil
}

// MustPanicWith fails unless fn panics with a message containing want
func MustPanicWith(t *testing.T, want string, fn func()) {
	t.Helper()
	v := MustPanic(t, fn)
	if msg := fmt.Sprint(v); !strings.Contains(msg, want) {
		t.Fatalf("panic %q does not mention %q", msg, want)
	}
}

// MustNotPanic fails if fn panics
func MustNotPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if v := recover(); v != nil {
			t.Fatalf("unexpected panic: %v", v)
		}
	}()
	fn()
}

// MustContain fails unless out contains want. Long output is cut to keep failures readable
func MustContain(t *testing.T, out, want string) {
	t.Helper()
	if strings.Contains(out, want) {
		return
	}
	if len(out) > 2000 {
		out = out[:2000] + "..."
	}
	t.Fatalf("output does not contain %q:\n%s", want, out)
}

// MustCode fails unless err carries code
func MustCode(t *testing.T, err error, code perr.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("err = nil; want %s", code)
	}
	if got := perr.CodeOf(err); got != code {
		t.Fatalf("err = %v (%s); want %s", err, got, code)
	}
}
