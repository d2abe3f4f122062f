package services_test

import (
	"errors"
	"strings"
	"testing"

	"milltrack/internal/services"
)

func TestWrapPreservesMarkerAndCause(t *testing.T) {
	base := errors.New("disk full")
	err := services.Wrap(services.ErrInvalidQuantity, "tracker", "record", "quantity rejected", base)

	if !errors.Is(err, services.ErrInvalidQuantity) {
		t.Fatalf("expected marker to survive wrapping: %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected cause to survive wrapping: %v", err)
	}
	if !strings.Contains(err.Error(), "tracker: record: quantity rejected") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"not found", services.Wrap(services.ErrNotFound, "ledger", "get", "missing", nil), "not_found"},
		{"out of order", services.ErrOutOfOrder, "out_of_order"},
		{"invalid quantity", services.ErrInvalidQuantity, "invalid_quantity"},
		{"over disposal", services.ErrOverDisposal, "over_disposal"},
		{"batch not active", services.ErrBatchNotActive, "batch_not_active"},
		{"conflict", services.ErrConflict, "conflict"},
		{"plain error", errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if kind := services.Kind(tc.err); kind != tc.expected {
				t.Fatalf("expected kind %q, got %q", tc.expected, kind)
			}
		})
	}
}
