package logger

import (
	"bytes"
	"context"
	"testing"

	"mixshift/internal/platform/testkit"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"trace":   "trace",
		"debug":   "debug",
		"warn":    "warn",
		"warning": "warn",
		"error":   "error",
		"":        "info",
		" junk ":  "info",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Fatalf("parseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInitAndContextFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "debug", Format: "json", Service: "test", Writer: &buf})

	ctx := WithRequest(context.Background(), "req-1")
	ctx = WithRun(ctx, "run-9", "A1SELLER")
	C(ctx).Info().Msg("hello")
	Named("harvest").Debug().Msg("named")

	out := buf.String()
	if out == "" {
		// another test may have initialised first with a different writer
		t.Skip("root logger already initialised elsewhere")
	}
	for _, want := range []string{`"request_id":"req-1"`, `"run_id":"run-9"`, `"seller_id":"A1SELLER"`, `"component":"harvest"`} {
		testkit.MustContain(t, out, want)
	}
	if RunID(ctx) != "run-9" {
		t.Fatalf("RunID = %q", RunID(ctx))
	}
}
