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

// quantityEpsilon absorbs float rounding when comparing disposal totals
// against recorded waste quantities.
const quantityEpsilon = 1e-9

// RecordDisposal inserts a disposal action against a waste item. The
// remaining quantity is recomputed inside the same transaction as the
// insert, so two concurrent disposals cannot both pass the over-disposal
// check when their combined total would exceed the recorded quantity.
func (s *Store) RecordDisposal(ctx context.Context, wasteID int64, quantity float64, handledBy string) (*Disposal, error) {
	now := time.Now().UTC()
	handledBy = strings.TrimSpace(handledBy)
	var disposal *Disposal

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var remaining float64
		err := tx.QueryRowContext(ctx,
			`SELECT w.quantity - COALESCE((
                SELECT SUM(d.disposed_quantity) FROM waste_disposals d
                WHERE d.waste_id = w.id AND d.is_deleted = 0
            ), 0)
            FROM waste_items w WHERE w.id = ? AND w.is_deleted = 0`, wasteID).Scan(&remaining)
		if errors.Is(err, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "disposal", "record disposal",
				fmt.Sprintf("waste item %d does not exist", wasteID), nil)
		}
		if err != nil {
			return fmt.Errorf("compute remaining: %w", err)
		}
		if quantity > remaining+quantityEpsilon {
			return services.Wrap(services.ErrOverDisposal, "disposal", "record disposal",
				fmt.Sprintf("disposing %.3f exceeds remaining %.3f for waste item %d", quantity, remaining, wasteID), nil)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO waste_disposals (waste_id, disposed_quantity, handled_by, disposed_at, is_deleted)
             VALUES (?, ?, ?, ?, 0)`,
			wasteID, quantity, nullableString(handledBy), timestamp(now))
		if err != nil {
			return fmt.Errorf("insert disposal: %w", err)
		}
		disposalID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		disposal = &Disposal{
			ID:               disposalID,
			WasteID:          wasteID,
			DisposedQuantity: quantity,
			HandledBy:        handledBy,
			DisposedAt:       now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return disposal, nil
}

// AssignDisposalHandler resolves a previously unassigned disposal to a
// handler identity.
func (s *Store) AssignDisposalHandler(ctx context.Context, disposalID int64, handledBy string) error {
	handledBy = strings.TrimSpace(handledBy)
	if handledBy == "" {
		return services.Wrap(services.ErrValidation, "disposal", "assign handler", "handler identity is required", nil)
	}
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE waste_disposals SET handled_by = ? WHERE id = ? AND is_deleted = 0`,
		handledBy, disposalID)
	if err != nil {
		return fmt.Errorf("assign handler: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "disposal", "assign handler",
			fmt.Sprintf("disposal %d does not exist", disposalID), nil)
	}
	return nil
}

// GetDisposal fetches a disposal by identifier. Soft-deleted disposals are
// invisible; returns nil when absent.
func (s *Store) GetDisposal(ctx context.Context, id int64) (*Disposal, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, waste_id, disposed_quantity, handled_by, disposed_at, is_deleted
         FROM waste_disposals WHERE id = ? AND is_deleted = 0`, id)
	return scanDisposal(row)
}

// ListDisposals returns visible disposals, optionally restricted to a set
// of waste identifiers (used to scope a caller's view to waste traceable
// to their own batches).
func (s *Store) ListDisposals(ctx context.Context, wasteIDs ...int64) ([]Disposal, error) {
	ctx = ensureContext(ctx)
	baseQuery := `SELECT id, waste_id, disposed_quantity, handled_by, disposed_at, is_deleted
         FROM waste_disposals WHERE is_deleted = 0`
	orderClause := ` ORDER BY disposed_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(wasteIDs) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(wasteIDs))
		args := make([]any, len(wasteIDs))
		for i, id := range wasteIDs {
			args[i] = id
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` AND waste_id IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list disposals: %w", err)
	}
	defer rows.Close()

	var disposals []Disposal
	for rows.Next() {
		disposal, err := scanDisposal(rows)
		if err != nil {
			return nil, err
		}
		disposals = append(disposals, *disposal)
	}
	return disposals, rows.Err()
}

// SoftDeleteDisposal hides a disposal as an administrative correction,
// returning its quantity to the waste item's remaining balance.
func (s *Store) SoftDeleteDisposal(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE waste_disposals SET is_deleted = 1 WHERE id = ? AND is_deleted = 0`, id)
	if err != nil {
		return fmt.Errorf("soft delete disposal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "disposal", "delete disposal",
			fmt.Sprintf("disposal %d does not exist", id), nil)
	}
	return nil
}

func scanDisposal(scanner interface{ Scan(dest ...any) error }) (*Disposal, error) {
	var (
		disposal    Disposal
		handledBy   sql.NullString
		isDeleted   int
		disposedRaw string
	)
	err := scanner.Scan(&disposal.ID, &disposal.WasteID, &disposal.DisposedQuantity, &handledBy, &disposedRaw, &isDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan disposal: %w", err)
	}
	disposal.HandledBy = handledBy.String
	disposal.IsDeleted = isDeleted != 0
	if disposed, err := parseTimeString(disposedRaw); err == nil {
		disposal.DisposedAt = disposed
	}
	return &disposal, nil
}
