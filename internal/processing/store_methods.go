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

// StageSeed describes one stage to create while seeding a method.
type StageSeed struct {
	Name        string
	AllowsSplit bool
}

// CreateMethod inserts a method together with its initial ordered stages.
// At least one stage is required so batches always have a first stage to
// point at.
func (s *Store) CreateMethod(ctx context.Context, name string, stages []StageSeed) (*Method, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create method", "method name is required", nil)
	}
	if len(stages) == 0 {
		return nil, services.Wrap(services.ErrConflict, "catalog", "create method", "a method needs at least one stage", nil)
	}
	for _, seed := range stages {
		if strings.TrimSpace(seed.Name) == "" {
			return nil, services.Wrap(services.ErrValidation, "catalog", "create method", "stage names must not be empty", nil)
		}
	}

	now := time.Now().UTC()
	var method *Method
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO processing_methods (name, created_at) VALUES (?, ?)`,
			name, timestamp(now),
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return services.Wrap(services.ErrConflict, "catalog", "create method",
					fmt.Sprintf("method %q already exists", name), nil)
			}
			return fmt.Errorf("insert method: %w", err)
		}
		methodID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		for i, seed := range stages {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO stages (method_id, order_index, name, allows_split) VALUES (?, ?, ?, ?)`,
				methodID, i+1, strings.TrimSpace(seed.Name), boolToInt(seed.AllowsSplit),
			); err != nil {
				return fmt.Errorf("insert stage %q: %w", seed.Name, err)
			}
		}

		method = &Method{ID: methodID, Name: name, CreatedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return method, nil
}

// GetMethod fetches a method by identifier. Returns nil when absent.
func (s *Store) GetMethod(ctx context.Context, id int64) (*Method, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, name, created_at FROM processing_methods WHERE id = ?`, id)
	return scanMethod(row)
}

// MethodByName fetches a method by its unique name. Returns nil when absent.
func (s *Store) MethodByName(ctx context.Context, name string) (*Method, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, name, created_at FROM processing_methods WHERE name = ?`, strings.TrimSpace(name))
	return scanMethod(row)
}

// ListMethods returns all methods ordered by name.
func (s *Store) ListMethods(ctx context.Context) ([]Method, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, name, created_at FROM processing_methods ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list methods: %w", err)
	}
	defer rows.Close()

	var methods []Method
	for rows.Next() {
		method, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, *method)
	}
	return methods, rows.Err()
}

// OrderedStages returns a method's stages sorted by order index ascending.
// Fails with a not-found error when the method does not exist.
func (s *Store) OrderedStages(ctx context.Context, methodID int64) ([]Stage, error) {
	ctx = ensureContext(ctx)
	method, err := s.GetMethod(ctx, methodID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "ordered stages",
			fmt.Sprintf("method %d does not exist", methodID), nil)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, method_id, order_index, name, allows_split
         FROM stages WHERE method_id = ? ORDER BY order_index`, methodID)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()

	var stages []Stage
	for rows.Next() {
		var (
			stage       Stage
			allowsSplit int
		)
		if err := rows.Scan(&stage.ID, &stage.MethodID, &stage.OrderIndex, &stage.Name, &allowsSplit); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		stage.AllowsSplit = allowsSplit != 0
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

// AppendStage adds a stage to the end of a method's sequence. Methods with
// zero stages reject appends; bootstrap must seed at least one. No reorder
// or delete operation exists, so completed-prefix histories stay valid.
func (s *Store) AppendStage(ctx context.Context, methodID int64, name string, allowsSplit bool) (*Stage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "append stage", "stage name is required", nil)
	}

	var stage *Stage
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM processing_methods WHERE id = ?`, methodID).Scan(&exists); err != nil {
			return fmt.Errorf("check method: %w", err)
		}
		if exists == 0 {
			return services.Wrap(services.ErrNotFound, "catalog", "append stage",
				fmt.Sprintf("method %d does not exist", methodID), nil)
		}

		var count int
		var maxOrder sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1), MAX(order_index) FROM stages WHERE method_id = ?`, methodID).Scan(&count, &maxOrder); err != nil {
			return fmt.Errorf("check stage count: %w", err)
		}
		if count == 0 {
			return services.Wrap(services.ErrConflict, "catalog", "append stage",
				fmt.Sprintf("method %d has no seeded stages", methodID), nil)
		}

		orderIndex := int(maxOrder.Int64) + 1
		res, err := tx.ExecContext(ctx,
			`INSERT INTO stages (method_id, order_index, name, allows_split) VALUES (?, ?, ?, ?)`,
			methodID, orderIndex, name, boolToInt(allowsSplit))
		if err != nil {
			return fmt.Errorf("insert stage: %w", err)
		}
		stageID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		stage = &Stage{ID: stageID, MethodID: methodID, OrderIndex: orderIndex, Name: name, AllowsSplit: allowsSplit}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stage, nil
}

func scanMethod(scanner interface{ Scan(dest ...any) error }) (*Method, error) {
	var (
		method     Method
		createdRaw string
	)
	err := scanner.Scan(&method.ID, &method.Name, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan method: %w", err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		method.CreatedAt = created
	}
	return &method, nil
}
