package requestid

import (
	"context"
	"testing"
)

func TestNewProducesUniqueHexIDs(t *testing.T) {
	first, err := New()
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	second, err := New()
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if len(first) != 32 || len(second) != 32 {
		t.Fatalf("ids must be 32 hex chars: %q %q", first, second)
	}
	if first == second {
		t.Fatal("ids must not repeat")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithContext(context.Background(), "abc123")
	if got := FromContext(ctx); got != "abc123" {
		t.Fatalf("FromContext() = %q", got)
	}
	if got := FromContext(context.Background()); got != "" {
		t.Fatalf("FromContext(empty) = %q, want empty", got)
	}
}
