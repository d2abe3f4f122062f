package preflight_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"milltrack/internal/notifications"
	"milltrack/internal/preflight"
	"milltrack/internal/testsupport"
)

func TestRunHealthyEnvironment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.MinFreeSpace = 0

	results := preflight.Run(context.Background(), cfg, notifications.NewService(cfg))
	if !preflight.Healthy(results) {
		t.Fatalf("expected healthy environment, got %+v", results)
	}

	byName := map[string]preflight.Result{}
	for _, result := range results {
		byName[result.Name] = result
	}
	if byName["notifications"].Detail != "not configured" {
		t.Fatalf("unexpected notification result: %+v", byName["notifications"])
	}
}

func TestRunFlagsUnreachableNotifications(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Paths.MinFreeSpace = 0
	cfg.Notifications.Topic = server.URL

	results := preflight.Run(context.Background(), cfg, notifications.NewService(cfg))

	var found bool
	for _, result := range results {
		if result.Name == "notifications" {
			found = true
			if result.Status != preflight.StatusWarn {
				t.Fatalf("expected warning, got %+v", result)
			}
		}
	}
	if !found {
		t.Fatal("missing notifications check")
	}
	// A flaky endpoint warns but does not block startup.
	if !preflight.Healthy(results) {
		t.Fatalf("warnings should not fail the run: %+v", results)
	}
}
