// Package views projects store records into the row shapes the CLI tables
// render. Projections are pure; all data access happens before they run.
package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"milltrack/internal/identity"
	"milltrack/internal/processing"
)

var titleCaser = cases.Title(language.English)

// DisplayStageName normalizes a stored stage name for presentation.
func DisplayStageName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	return titleCaser.String(name)
}

// BatchRow is one line of a batch listing.
type BatchRow struct {
	ID        int64
	Reference string
	Method    string
	InputLot  string
	Stage     string
	Status    string
	CreatedAt string
}

// BatchRows projects batches into listing rows. The stage column shows the
// current snapshot stage for active batches and a terminal marker
// otherwise.
func BatchRows(batches []*processing.Batch) []BatchRow {
	rows := make([]BatchRow, 0, len(batches))
	for _, batch := range batches {
		rows = append(rows, BatchRow{
			ID:        batch.ID,
			Reference: shortReference(batch.Reference),
			Method:    batch.MethodName,
			InputLot:  batch.InputLot,
			Stage:     currentStageLabel(batch),
			Status:    string(batch.Status),
			CreatedAt: formatTime(batch.CreatedAt),
		})
	}
	return rows
}

func currentStageLabel(batch *processing.Batch) string {
	switch batch.Status {
	case processing.BatchCompleted:
		return "-"
	case processing.BatchCancelled:
		return "-"
	}
	if stage, ok := batch.StageAt(batch.CurrentStageOrder); ok {
		return fmt.Sprintf("%d/%d %s", stagePosition(batch, stage.OrderIndex), len(batch.Snapshot), DisplayStageName(stage.Name))
	}
	return "?"
}

func stagePosition(batch *processing.Batch, orderIndex int) int {
	for i, stage := range batch.Snapshot {
		if stage.OrderIndex == orderIndex {
			return i + 1
		}
	}
	return 0
}

// HistoryRow is one line of a batch's progress history.
type HistoryRow struct {
	Order      int
	Stage      string
	InputKg    string
	OutputKg   string
	Status     string
	RecordedAt string
}

// HistoryRows projects progress entries into history rows, resolving stage
// names through the batch's snapshot.
func HistoryRows(batch *processing.Batch, entries []processing.ProgressEntry) []HistoryRow {
	rows := make([]HistoryRow, 0, len(entries))
	for _, entry := range entries {
		name := "unknown"
		if stage, ok := batch.StageAt(entry.OrderIndex); ok {
			name = DisplayStageName(stage.Name)
		}
		rows = append(rows, HistoryRow{
			Order:      entry.OrderIndex,
			Stage:      name,
			InputKg:    formatQuantity(entry.InputQuantity),
			OutputKg:   formatQuantity(entry.OutputQuantity),
			Status:     string(entry.Status),
			RecordedAt: formatTime(entry.RecordedAt),
		})
	}
	return rows
}

// WasteRow is one line of a waste listing.
type WasteRow struct {
	ID          int64
	Batch       string
	InputLot    string
	Stage       string
	QuantityKg  string
	RemainingKg string
	RecordedAt  string
}

// WasteRows projects waste records into listing rows.
func WasteRows(records []processing.WasteRecord) []WasteRow {
	rows := make([]WasteRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, WasteRow{
			ID:          record.ID,
			Batch:       shortReference(record.BatchReference),
			InputLot:    record.InputLot,
			Stage:       DisplayStageName(record.StageName),
			QuantityKg:  formatQuantity(record.Quantity),
			RemainingKg: formatQuantity(record.Remaining),
			RecordedAt:  formatTime(record.RecordedAt),
		})
	}
	return rows
}

// DisposalRow is one line of a disposal listing.
type DisposalRow struct {
	ID         int64
	WasteID    int64
	QuantityKg string
	Handler    string
	DisposedAt string
}

// DisposalRows projects disposals into listing rows, resolving handler
// display names lazily. Unassigned disposals show the not-available
// marker.
func DisposalRows(ctx context.Context, directory identity.HandlerDirectory, disposals []processing.Disposal) []DisposalRow {
	rows := make([]DisposalRow, 0, len(disposals))
	for _, disposal := range disposals {
		rows = append(rows, DisposalRow{
			ID:         disposal.ID,
			WasteID:    disposal.WasteID,
			QuantityKg: formatQuantity(disposal.DisposedQuantity),
			Handler:    identity.DisplayHandler(ctx, directory, disposal.HandledBy),
			DisposedAt: formatTime(disposal.DisposedAt),
		})
	}
	return rows
}

func shortReference(reference string) string {
	if len(reference) > 8 {
		return reference[:8]
	}
	return reference
}

func formatQuantity(quantity float64) string {
	return fmt.Sprintf("%.2f", quantity)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
