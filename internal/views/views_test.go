package views_test

import (
	"context"
	"testing"
	"time"

	"milltrack/internal/identity"
	"milltrack/internal/processing"
	"milltrack/internal/testsupport"
	"milltrack/internal/views"
)

func TestDisplayStageName(t *testing.T) {
	cases := map[string]string{
		"milling":        "Milling",
		"  sun drying  ": "Sun Drying",
		"":               "unknown",
	}
	for input, want := range cases {
		if got := views.DisplayStageName(input); got != want {
			t.Fatalf("DisplayStageName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestBatchRowsShowCurrentStage(t *testing.T) {
	batch := &processing.Batch{
		ID:                4,
		Reference:         "3f8a2c91-1111-2222-3333-444455556666",
		MethodName:        "Stone Milling",
		InputLot:          "LOT-2026-014",
		CurrentStageOrder: 2,
		Status:            processing.BatchInProgress,
		CreatedAt:         time.Date(2026, 8, 30, 9, 15, 0, 0, time.UTC),
		Snapshot: []processing.SnapshotStage{
			{OrderIndex: 1, StageID: 10, Name: "cleaning"},
			{OrderIndex: 2, StageID: 11, Name: "milling"},
			{OrderIndex: 3, StageID: 12, Name: "sifting"},
		},
	}

	rows := views.BatchRows([]*processing.Batch{batch})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Reference != "3f8a2c91" {
		t.Fatalf("unexpected reference: %q", rows[0].Reference)
	}
	if rows[0].Stage != "2/3 Milling" {
		t.Fatalf("unexpected stage label: %q", rows[0].Stage)
	}

	batch.Status = processing.BatchCompleted
	rows = views.BatchRows([]*processing.Batch{batch})
	if rows[0].Stage != "-" {
		t.Fatalf("terminal batch should show no stage, got %q", rows[0].Stage)
	}
}

func TestHistoryRowsResolveSnapshotNames(t *testing.T) {
	batch := &processing.Batch{
		Snapshot: []processing.SnapshotStage{
			{OrderIndex: 1, StageID: 10, Name: "pressing"},
			{OrderIndex: 2, StageID: 11, Name: "filtering"},
		},
	}
	entries := []processing.ProgressEntry{
		{OrderIndex: 1, InputQuantity: 100, OutputQuantity: 80, Status: processing.EntryCompleted},
		{OrderIndex: 2, InputQuantity: 80, OutputQuantity: 76.5, Status: processing.EntryCompleted},
	}

	rows := views.HistoryRows(batch, entries)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Stage != "Pressing" || rows[1].Stage != "Filtering" {
		t.Fatalf("unexpected stage names: %q %q", rows[0].Stage, rows[1].Stage)
	}
	if rows[1].OutputKg != "76.50" {
		t.Fatalf("unexpected quantity formatting: %q", rows[1].OutputKg)
	}
}

func TestDisposalRowsResolveHandlers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHandler("handler-3", "Valley Composting Co-op"))
	directory := identity.NewConfigDirectory(cfg)

	disposals := []processing.Disposal{
		{ID: 1, WasteID: 5, DisposedQuantity: 3, HandledBy: "handler-3"},
		{ID: 2, WasteID: 5, DisposedQuantity: 1, HandledBy: ""},
		{ID: 3, WasteID: 5, DisposedQuantity: 1, HandledBy: "handler-unknown"},
	}

	rows := views.DisposalRows(context.Background(), directory, disposals)
	if rows[0].Handler != "Valley Composting Co-op" {
		t.Fatalf("unexpected handler name: %q", rows[0].Handler)
	}
	if rows[1].Handler != identity.HandlerUnavailable {
		t.Fatalf("unassigned disposal should show %q, got %q", identity.HandlerUnavailable, rows[1].Handler)
	}
	if rows[2].Handler != "handler-unknown" {
		t.Fatalf("unknown handler should fall back to identity, got %q", rows[2].Handler)
	}
}
