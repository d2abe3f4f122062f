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

const wasteRecordColumns = `
    w.id, w.progress_id, w.quantity, w.recorded_by, w.recorded_at, w.is_deleted,
    ps.stage_name, pe.order_index, b.id, b.reference, b.input_lot, m.name,
    COALESCE(b.producer_id, ''),
    w.quantity - COALESCE((
        SELECT SUM(d.disposed_quantity) FROM waste_disposals d
        WHERE d.waste_id = w.id AND d.is_deleted = 0
    ), 0)`

const wasteRecordJoins = `
    FROM waste_items w
    JOIN progress_entries pe ON pe.id = w.progress_id
    JOIN batches b ON b.id = pe.batch_id
    JOIN processing_methods m ON m.id = b.method_id
    JOIN batch_stage_snapshots ps ON ps.batch_id = b.id AND ps.order_index = pe.order_index`

// RecordWaste inserts a waste item against a completed progress entry.
// Waste can only be attributed while the producing batch is in progress.
func (s *Store) RecordWaste(ctx context.Context, progressID int64, quantity float64, recordedBy string) (*Waste, error) {
	now := time.Now().UTC()
	var waste *Waste

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			entryStatus string
			batchStatus string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT pe.status, b.status
             FROM progress_entries pe
             JOIN batches b ON b.id = pe.batch_id
             WHERE pe.id = ? AND b.is_deleted = 0`, progressID).Scan(&entryStatus, &batchStatus)
		if errors.Is(err, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "waste ledger", "record waste",
				fmt.Sprintf("progress entry %d does not exist", progressID), nil)
		}
		if err != nil {
			return fmt.Errorf("inspect progress entry: %w", err)
		}
		if EntryStatus(entryStatus) != EntryCompleted {
			return services.Wrap(services.ErrNotFound, "waste ledger", "record waste",
				fmt.Sprintf("progress entry %d is not completed", progressID), nil)
		}
		if BatchStatus(batchStatus) != BatchInProgress {
			return services.Wrap(services.ErrBatchNotActive, "waste ledger", "record waste",
				fmt.Sprintf("batch for progress entry %d is %s", progressID, batchStatus), nil)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO waste_items (progress_id, quantity, recorded_by, recorded_at, is_deleted)
             VALUES (?, ?, ?, ?, 0)`,
			progressID, quantity, strings.TrimSpace(recordedBy), timestamp(now))
		if err != nil {
			return fmt.Errorf("insert waste: %w", err)
		}
		wasteID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		waste = &Waste{
			ID:         wasteID,
			ProgressID: progressID,
			Quantity:   quantity,
			RecordedBy: strings.TrimSpace(recordedBy),
			RecordedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return waste, nil
}

// GetWaste fetches a waste item by identifier. Soft-deleted items are
// invisible; returns nil when absent.
func (s *Store) GetWaste(ctx context.Context, id int64) (*Waste, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, progress_id, quantity, recorded_by, recorded_at, is_deleted
         FROM waste_items WHERE id = ? AND is_deleted = 0`, id)
	return scanWaste(row)
}

// Remaining computes the undisposed quantity of a waste item.
func (s *Store) Remaining(ctx context.Context, wasteID int64) (float64, error) {
	var remaining float64
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT w.quantity - COALESCE((
            SELECT SUM(d.disposed_quantity) FROM waste_disposals d
            WHERE d.waste_id = w.id AND d.is_deleted = 0
        ), 0)
        FROM waste_items w WHERE w.id = ? AND w.is_deleted = 0`, wasteID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, services.Wrap(services.ErrNotFound, "waste ledger", "remaining",
			fmt.Sprintf("waste item %d does not exist", wasteID), nil)
	}
	if err != nil {
		return 0, fmt.Errorf("compute remaining: %w", err)
	}
	return remaining, nil
}

// ListWaste returns all visible waste items joined with their producing
// stage and batch, ordered by recording time.
func (s *Store) ListWaste(ctx context.Context) ([]WasteRecord, error) {
	query := `SELECT` + wasteRecordColumns + wasteRecordJoins +
		` WHERE w.is_deleted = 0 AND b.is_deleted = 0 ORDER BY w.recorded_at, w.id`
	return s.queryWasteRecords(ensureContext(ctx), query)
}

// ListWasteByProducer returns visible waste restricted to batches owned by
// one producer.
func (s *Store) ListWasteByProducer(ctx context.Context, producerID string) ([]WasteRecord, error) {
	query := `SELECT` + wasteRecordColumns + wasteRecordJoins +
		` WHERE w.is_deleted = 0 AND b.is_deleted = 0 AND b.producer_id = ? ORDER BY w.recorded_at, w.id`
	return s.queryWasteRecords(ensureContext(ctx), query, strings.TrimSpace(producerID))
}

// SoftDeleteWaste hides a waste item as an administrative correction.
// History stays in place; no record is ever physically removed.
func (s *Store) SoftDeleteWaste(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE waste_items SET is_deleted = 1 WHERE id = ? AND is_deleted = 0`, id)
	if err != nil {
		return fmt.Errorf("soft delete waste: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "waste ledger", "delete waste",
			fmt.Sprintf("waste item %d does not exist", id), nil)
	}
	return nil
}

func (s *Store) queryWasteRecords(ctx context.Context, query string, args ...any) ([]WasteRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list waste: %w", err)
	}
	defer rows.Close()

	var records []WasteRecord
	for rows.Next() {
		var (
			record      WasteRecord
			isDeleted   int
			recordedRaw string
		)
		if err := rows.Scan(
			&record.ID, &record.ProgressID, &record.Quantity, &record.RecordedBy, &recordedRaw, &isDeleted,
			&record.StageName, &record.OrderIndex, &record.BatchID, &record.BatchReference,
			&record.InputLot, &record.MethodName, &record.ProducerID, &record.Remaining,
		); err != nil {
			return nil, fmt.Errorf("scan waste record: %w", err)
		}
		record.IsDeleted = isDeleted != 0
		if recorded, err := parseTimeString(recordedRaw); err == nil {
			record.RecordedAt = recorded
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanWaste(scanner interface{ Scan(dest ...any) error }) (*Waste, error) {
	var (
		waste       Waste
		isDeleted   int
		recordedRaw string
	)
	err := scanner.Scan(&waste.ID, &waste.ProgressID, &waste.Quantity, &waste.RecordedBy, &recordedRaw, &isDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan waste: %w", err)
	}
	waste.IsDeleted = isDeleted != 0
	if recorded, err := parseTimeString(recordedRaw); err == nil {
		waste.RecordedAt = recorded
	}
	return &waste, nil
}
