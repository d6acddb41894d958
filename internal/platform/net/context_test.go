package net

import (
	"context"
	"testing"
)

func TestRequestID(t *testing.T) {
	t.Parallel()
	if RequestID(context.Background()) != "" {
		t.Fatalf("empty ctx should have no id")
	}
	ctx := WithRequestID(context.Background(), "r-1")
	if RequestID(ctx) != "r-1" {
		t.Fatalf("RequestID = %q", RequestID(ctx))
	}
	if WithRequestID(ctx, "") != ctx {
		t.Fatalf("blank id should not wrap ctx")
	}
}
