package processing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"milltrack/internal/services"
)

// SplitWasteSpec is the compensating waste a splitting stage records in the
// same transaction as its progress entry.
type SplitWasteSpec struct {
	Quantity   float64
	RecordedBy string
}

// StageCompletion describes the write CompleteStage performs atomically:
// persist one completed progress entry, advance the batch pointer (or mark
// the batch completed when Final), and optionally record split waste.
type StageCompletion struct {
	BatchID        int64
	StageID        int64
	OrderIndex     int
	InputQuantity  float64
	OutputQuantity float64
	NextStageOrder int
	Final          bool
	SplitWaste     *SplitWasteSpec
}

// CompleteStage runs the check-and-write for one stage completion. The
// batch-row update is conditioned on the current stage order, so a
// concurrent completion of the same stage leaves exactly one winner; the
// loser observes a conflict and no partial state.
func (s *Store) CompleteStage(ctx context.Context, completion StageCompletion) (*ProgressEntry, error) {
	now := time.Now().UTC()
	var entry *ProgressEntry

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			res sql.Result
			err error
		)
		if completion.Final {
			res, err = tx.ExecContext(ctx,
				`UPDATE batches SET status = ?, updated_at = ?
                 WHERE id = ? AND status = ? AND current_stage_order = ? AND is_deleted = 0`,
				BatchCompleted, timestamp(now),
				completion.BatchID, BatchInProgress, completion.OrderIndex)
		} else {
			res, err = tx.ExecContext(ctx,
				`UPDATE batches SET current_stage_order = ?, updated_at = ?
                 WHERE id = ? AND status = ? AND current_stage_order = ? AND is_deleted = 0`,
				completion.NextStageOrder, timestamp(now),
				completion.BatchID, BatchInProgress, completion.OrderIndex)
		}
		if err != nil {
			return fmt.Errorf("advance batch: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return s.classifyAdvanceFailure(ctx, tx, completion)
		}

		entryRes, err := tx.ExecContext(ctx,
			`INSERT INTO progress_entries (
                batch_id, stage_id, order_index, input_quantity, output_quantity, status, recorded_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			completion.BatchID, completion.StageID, completion.OrderIndex,
			completion.InputQuantity, completion.OutputQuantity, EntryCompleted, timestamp(now))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return services.Wrap(services.ErrConflict, "tracker", "record progress",
					fmt.Sprintf("stage order %d already recorded for batch %d", completion.OrderIndex, completion.BatchID), nil)
			}
			return fmt.Errorf("insert progress entry: %w", err)
		}
		entryID, err := entryRes.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		if spec := completion.SplitWaste; spec != nil {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO waste_items (progress_id, quantity, recorded_by, recorded_at, is_deleted)
                 VALUES (?, ?, ?, ?, 0)`,
				entryID, spec.Quantity, spec.RecordedBy, timestamp(now)); err != nil {
				return fmt.Errorf("insert split waste: %w", err)
			}
		}

		entry = &ProgressEntry{
			ID:             entryID,
			BatchID:        completion.BatchID,
			StageID:        completion.StageID,
			OrderIndex:     completion.OrderIndex,
			InputQuantity:  completion.InputQuantity,
			OutputQuantity: completion.OutputQuantity,
			Status:         EntryCompleted,
			RecordedAt:     now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) classifyAdvanceFailure(ctx context.Context, tx *sql.Tx, completion StageCompletion) error {
	var (
		statusStr    string
		currentOrder int
	)
	err := tx.QueryRowContext(ctx,
		`SELECT status, current_stage_order FROM batches WHERE id = ? AND is_deleted = 0`,
		completion.BatchID).Scan(&statusStr, &currentOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return services.Wrap(services.ErrNotFound, "tracker", "record progress",
			fmt.Sprintf("batch %d does not exist", completion.BatchID), nil)
	}
	if err != nil {
		return fmt.Errorf("inspect batch: %w", err)
	}
	if BatchStatus(statusStr) != BatchInProgress {
		return services.Wrap(services.ErrBatchNotActive, "tracker", "record progress",
			fmt.Sprintf("batch %d is %s", completion.BatchID, statusStr), nil)
	}
	return services.Wrap(services.ErrConflict, "tracker", "record progress",
		fmt.Sprintf("batch %d moved to stage order %d concurrently", completion.BatchID, currentOrder), nil)
}

// History returns a batch's progress entries ordered by stage order
// ascending. Unknown batch identifiers are a hard failure; a batch with no
// entries yet yields an empty result.
func (s *Store) History(ctx context.Context, batchID int64) ([]ProgressEntry, error) {
	ctx = ensureContext(ctx)
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, services.Wrap(services.ErrNotFound, "tracker", "history",
			fmt.Sprintf("batch %d does not exist", batchID), nil)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, stage_id, order_index, input_quantity, output_quantity, status, recorded_at
         FROM progress_entries WHERE batch_id = ? ORDER BY order_index`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]ProgressEntry, 0, len(batch.Snapshot))
	for rows.Next() {
		entry, err := scanProgressEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// GetProgressEntry fetches one progress entry by identifier. Returns nil
// when absent.
func (s *Store) GetProgressEntry(ctx context.Context, id int64) (*ProgressEntry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, batch_id, stage_id, order_index, input_quantity, output_quantity, status, recorded_at
         FROM progress_entries WHERE id = ?`, id)
	entry, err := scanProgressEntry(row)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func scanProgressEntry(scanner interface{ Scan(dest ...any) error }) (*ProgressEntry, error) {
	var (
		entry       ProgressEntry
		statusStr   string
		recordedRaw string
	)
	err := scanner.Scan(
		&entry.ID, &entry.BatchID, &entry.StageID, &entry.OrderIndex,
		&entry.InputQuantity, &entry.OutputQuantity, &statusStr, &recordedRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan progress entry: %w", err)
	}
	entry.Status = EntryStatus(statusStr)
	if recorded, err := parseTimeString(recordedRaw); err == nil {
		entry.RecordedAt = recorded
	}
	return &entry, nil
}
