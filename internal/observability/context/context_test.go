package context

import (
	"context"
	"testing"
)

func TestEnsureRequestIDKeepsExisting(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx, id := EnsureRequestID(ctx)
	if id != "req-1" {
		t.Fatalf("expected req-1, got %q", id)
	}
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1 on context, got %q", got)
	}
}

func TestEnsureRequestIDMintsULID(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if len(id) != 26 {
		t.Fatalf("expected 26 char ulid, got %q", id)
	}
	if RequestIDFromContext(ctx) != id {
		t.Fatalf("expected minted id on context")
	}
}

func TestActorFromContext(t *testing.T) {
	role, id := ActorFromContext(context.Background())
	if role != "" || id != "" {
		t.Fatalf("expected empty actor")
	}
	ctx := WithActor(context.Background(), " officer ", "42")
	role, id = ActorFromContext(ctx)
	if role != "officer" || id != "42" {
		t.Fatalf("unexpected actor %q/%q", role, id)
	}
}
