package processing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"milltrack/internal/services"
)

// CreateBatch inserts a batch bound to one method and one input lot,
// snapshotting the method's current ordered stage list so later appends to
// the method cannot disturb this batch's sequence.
func (s *Store) CreateBatch(ctx context.Context, methodID int64, inputLot, producerID string) (*Batch, error) {
	inputLot = strings.TrimSpace(inputLot)
	if inputLot == "" {
		return nil, services.Wrap(services.ErrValidation, "registry", "create batch", "input lot is required", nil)
	}

	now := time.Now().UTC()
	reference := uuid.NewString()

	var batchID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT order_index, id, name, allows_split FROM stages WHERE method_id = ? ORDER BY order_index`, methodID)
		if err != nil {
			return fmt.Errorf("query stages: %w", err)
		}
		snapshot, err := collectSnapshot(rows)
		if err != nil {
			return err
		}
		if len(snapshot) == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(1) FROM processing_methods WHERE id = ?`, methodID).Scan(&exists); err != nil {
				return fmt.Errorf("check method: %w", err)
			}
			if exists == 0 {
				return services.Wrap(services.ErrNotFound, "registry", "create batch",
					fmt.Sprintf("method %d does not exist", methodID), nil)
			}
			return services.Wrap(services.ErrConflict, "registry", "create batch",
				fmt.Sprintf("method %d has no stages", methodID), nil)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO batches (
                reference, method_id, input_lot, producer_id, current_stage_order,
                status, is_deleted, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			reference, methodID, inputLot, nullableString(strings.TrimSpace(producerID)),
			snapshot[0].OrderIndex, BatchInProgress, timestamp(now), timestamp(now))
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		batchID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		for _, stage := range snapshot {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO batch_stage_snapshots (batch_id, order_index, stage_id, stage_name, allows_split)
                 VALUES (?, ?, ?, ?, ?)`,
				batchID, stage.OrderIndex, stage.StageID, stage.Name, boolToInt(stage.AllowsSplit)); err != nil {
				return fmt.Errorf("insert snapshot row: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBatch(ctx, batchID)
}

// GetBatch fetches a batch with its stage snapshot. Soft-deleted batches
// are invisible; returns nil when absent.
func (s *Store) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT b.id, b.reference, b.method_id, m.name, b.input_lot, b.producer_id,
                b.current_stage_order, b.status, b.cancel_reason, b.is_deleted,
                b.created_at, b.updated_at
         FROM batches b
         JOIN processing_methods m ON m.id = b.method_id
         WHERE b.id = ? AND b.is_deleted = 0`, id)
	batch, err := scanBatch(row)
	if err != nil || batch == nil {
		return batch, err
	}
	if err := s.loadSnapshot(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// ListBatches returns non-deleted batches filtered by status set (or all
// batches when no status is provided), ordered by creation time.
func (s *Store) ListBatches(ctx context.Context, statuses ...BatchStatus) ([]*Batch, error) {
	ctx = ensureContext(ctx)
	baseQuery := `SELECT b.id, b.reference, b.method_id, m.name, b.input_lot, b.producer_id,
                b.current_stage_order, b.status, b.cancel_reason, b.is_deleted,
                b.created_at, b.updated_at
         FROM batches b
         JOIN processing_methods m ON m.id = b.method_id
         WHERE b.is_deleted = 0`
	orderClause := ` ORDER BY b.created_at, b.id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` AND b.status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, batch := range batches {
		if err := s.loadSnapshot(ctx, batch); err != nil {
			return nil, err
		}
	}
	return batches, nil
}

// CancelBatch terminates an in-progress batch. Terminal and irreversible;
// the conditional update rejects batches in any other state.
func (s *Store) CancelBatch(ctx context.Context, id int64, reason string) error {
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE batches SET status = ?, cancel_reason = ?, updated_at = ?
         WHERE id = ? AND status = ? AND is_deleted = 0`,
		BatchCancelled, nullableString(strings.TrimSpace(reason)), timestamp(time.Now().UTC()),
		id, BatchInProgress)
	if err != nil {
		return fmt.Errorf("cancel batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		batch, err := s.GetBatch(ctx, id)
		if err != nil {
			return err
		}
		if batch == nil {
			return services.Wrap(services.ErrNotFound, "registry", "cancel batch",
				fmt.Sprintf("batch %d does not exist", id), nil)
		}
		return services.Wrap(services.ErrBatchNotActive, "registry", "cancel batch",
			fmt.Sprintf("batch %d is %s", id, batch.Status), nil)
	}
	return nil
}

// SoftDeleteBatch hides a batch from reads while keeping its progress,
// waste and disposal history auditable.
func (s *Store) SoftDeleteBatch(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE batches SET is_deleted = 1, updated_at = ? WHERE id = ? AND is_deleted = 0`,
		timestamp(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("soft delete batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "registry", "delete batch",
			fmt.Sprintf("batch %d does not exist", id), nil)
	}
	return nil
}

// Stats aggregates batch counts and waste totals for diagnostics.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{Batches: make(map[BatchStatus]int)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM batches WHERE is_deleted = 0 GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("batch stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status BatchStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.Batches[status] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0), COUNT(1) FROM waste_items WHERE is_deleted = 0`)
	if err := row.Scan(&stats.WasteQuantity, &stats.OpenWasteItems); err != nil {
		return stats, fmt.Errorf("waste stats: %w", err)
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(d.disposed_quantity), 0)
         FROM waste_disposals d
         JOIN waste_items w ON w.id = d.waste_id
         WHERE d.is_deleted = 0 AND w.is_deleted = 0`)
	if err := row.Scan(&stats.DisposedTotal); err != nil {
		return stats, fmt.Errorf("disposal stats: %w", err)
	}

	return stats, nil
}

func (s *Store) loadSnapshot(ctx context.Context, batch *Batch) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_index, stage_id, stage_name, allows_split
         FROM batch_stage_snapshots WHERE batch_id = ? ORDER BY order_index`, batch.ID)
	if err != nil {
		return fmt.Errorf("query snapshot: %w", err)
	}
	snapshot, err := collectSnapshot(rows)
	if err != nil {
		return err
	}
	batch.Snapshot = snapshot
	return nil
}

func collectSnapshot(rows *sql.Rows) ([]SnapshotStage, error) {
	defer rows.Close()
	var snapshot []SnapshotStage
	for rows.Next() {
		var (
			stage       SnapshotStage
			allowsSplit int
		)
		if err := rows.Scan(&stage.OrderIndex, &stage.StageID, &stage.Name, &allowsSplit); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		stage.AllowsSplit = allowsSplit != 0
		snapshot = append(snapshot, stage)
	}
	return snapshot, rows.Err()
}

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*Batch, error) {
	var (
		batch        Batch
		producerID   sql.NullString
		cancelReason sql.NullString
		isDeleted    int
		createdRaw   string
		updatedRaw   string
		statusStr    string
	)
	err := scanner.Scan(
		&batch.ID, &batch.Reference, &batch.MethodID, &batch.MethodName, &batch.InputLot,
		&producerID, &batch.CurrentStageOrder, &statusStr, &cancelReason, &isDeleted,
		&createdRaw, &updatedRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	batch.Status = BatchStatus(statusStr)
	batch.ProducerID = producerID.String
	batch.CancelReason = cancelReason.String
	batch.IsDeleted = isDeleted != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		batch.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		batch.UpdatedAt = updated
	}
	return &batch, nil
}
