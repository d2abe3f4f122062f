package identity_test

import (
	"context"
	"testing"

	"milltrack/internal/identity"
	"milltrack/internal/testsupport"
)

func TestConfigDirectoryResolvesProducer(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProducer("user-ana", "producer-7"))
	dir := identity.NewConfigDirectory(cfg)
	ctx := context.Background()

	producer, ok, err := dir.ResolveProducer(ctx, "user-ana")
	if err != nil {
		t.Fatalf("ResolveProducer failed: %v", err)
	}
	if !ok || producer != "producer-7" {
		t.Fatalf("unexpected resolution: %q ok=%v", producer, ok)
	}

	_, ok, err = dir.ResolveProducer(ctx, "user-unknown")
	if err != nil {
		t.Fatalf("ResolveProducer failed: %v", err)
	}
	if ok {
		t.Fatal("expected no producer record for unknown user")
	}
}

func TestDisplayHandlerFallbacks(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHandler("handler-3", "Valley Composting Co-op"))
	dir := identity.NewConfigDirectory(cfg)
	ctx := context.Background()

	if got := identity.DisplayHandler(ctx, dir, "handler-3"); got != "Valley Composting Co-op" {
		t.Fatalf("unexpected display name: %q", got)
	}
	// Unknown handlers fall back to the raw identity rather than failing.
	if got := identity.DisplayHandler(ctx, dir, "handler-9"); got != "handler-9" {
		t.Fatalf("unexpected fallback: %q", got)
	}
	// Unassigned handlers render the not-available marker.
	if got := identity.DisplayHandler(ctx, dir, ""); got != identity.HandlerUnavailable {
		t.Fatalf("unexpected marker: %q", got)
	}
}
