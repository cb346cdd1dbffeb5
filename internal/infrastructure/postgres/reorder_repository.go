package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
	"github.com/jhoicas/ledger-inventario/internal/domain/repository"
)

var _ repository.ReorderRepository = (*ReorderRepo)(nil)

// ReorderRepo implementación de umbrales de reposición y alertas sobre
// PostgreSQL (usable con pool o tx). El índice único parcial
// uq_low_stock_alerts_open sobre (institution_id, item_id, warehouse_id)
// WHERE resolved_at IS NULL garantiza a lo sumo una alerta abierta por agregado.
type ReorderRepo struct {
	q Querier
}

// NewReorderRepository construye el adaptador de reorden. Pasar pool o tx (Querier).
func NewReorderRepository(q Querier) *ReorderRepo {
	return &ReorderRepo{q: q}
}

// GetLevel lee el umbral configurado. Devuelve nil si no hay umbral.
func (r *ReorderRepo) GetLevel(ctx context.Context, key entity.AggregateKey) (*entity.ReorderLevel, error) {
	query := `
		SELECT institution_id, item_id, warehouse_id, level, updated_at, updated_by
		FROM reorder_levels
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3`
	var lvl entity.ReorderLevel
	err := r.q.QueryRow(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID).Scan(
		&lvl.InstitutionID, &lvl.ItemID, &lvl.WarehouseID, &lvl.Level, &lvl.UpdatedAt, &lvl.UpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reorder level: %w", err)
	}
	return &lvl, nil
}

// UpsertLevel inserta o actualiza el umbral del agregado.
func (r *ReorderRepo) UpsertLevel(ctx context.Context, level *entity.ReorderLevel) error {
	query := `
		INSERT INTO reorder_levels (institution_id, item_id, warehouse_id, level, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, now(), $5)
		ON CONFLICT (institution_id, item_id, warehouse_id)
		DO UPDATE SET level = EXCLUDED.level, updated_at = now(), updated_by = EXCLUDED.updated_by`
	_, err := r.q.Exec(ctx, query,
		level.InstitutionID, level.ItemID, level.WarehouseID, level.Level, level.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("upsert reorder level: %w", err)
	}
	return nil
}

const alertColumns = `
	id, institution_id, item_id, warehouse_id, reorder_level,
	quantity_available, triggered_at, acknowledged_at, acknowledged_by, resolved_at`

// GetOpenAlert devuelve la alerta abierta del agregado, o nil si no hay.
func (r *ReorderRepo) GetOpenAlert(ctx context.Context, key entity.AggregateKey) (*entity.LowStockAlert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM low_stock_alerts
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3
		  AND resolved_at IS NULL`
	a, err := scanAlertRow(r.q.QueryRow(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get open alert: %w", err)
	}
	return a, nil
}

// GetAlert lee una alerta por ID dentro de la institución.
func (r *ReorderRepo) GetAlert(ctx context.Context, institutionID, alertID string) (*entity.LowStockAlert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM low_stock_alerts
		WHERE institution_id = $1 AND id = $2`
	a, err := scanAlertRow(r.q.QueryRow(ctx, query, institutionID, alertID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

// CreateAlert inserta la alerta. El índice único parcial rechaza una segunda
// alerta abierta del mismo agregado.
func (r *ReorderRepo) CreateAlert(ctx context.Context, alert *entity.LowStockAlert) error {
	query := `
		INSERT INTO low_stock_alerts (
			id, institution_id, item_id, warehouse_id, reorder_level,
			quantity_available, triggered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(ctx, query,
		alert.ID, alert.InstitutionID, alert.ItemID, alert.WarehouseID, alert.ReorderLevel,
		alert.QuantityAvailable, alert.TriggeredAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// AcknowledgeAlert marca quién vio la alerta; no la cierra.
func (r *ReorderRepo) AcknowledgeAlert(ctx context.Context, id, userID string, at time.Time) error {
	query := `
		UPDATE low_stock_alerts
		SET acknowledged_at = $2, acknowledged_by = $3
		WHERE id = $1 AND resolved_at IS NULL`
	tag, err := r.q.Exec(ctx, query, id, at, userID)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResolveAlert cierra la alerta.
func (r *ReorderRepo) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE low_stock_alerts
		SET resolved_at = $2
		WHERE id = $1 AND resolved_at IS NULL`
	tag, err := r.q.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpenAlerts lista alertas abiertas de la institución; warehouseID vacío
// no filtra por bodega.
func (r *ReorderRepo) ListOpenAlerts(ctx context.Context, institutionID, warehouseID string, limit, offset int) ([]*entity.LowStockAlert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM low_stock_alerts
		WHERE institution_id = $1 AND resolved_at IS NULL
		  AND ($2 = '' OR warehouse_id = $2)
		ORDER BY triggered_at DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.q.Query(ctx, query, institutionID, warehouseID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list open alerts: %w", err)
	}
	defer rows.Close()

	var out []*entity.LowStockAlert
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterar alertas: %w", err)
	}
	return out, nil
}

func scanAlertRow(row pgx.Row) (*entity.LowStockAlert, error) {
	var a entity.LowStockAlert
	var ackBy *string
	err := row.Scan(
		&a.ID, &a.InstitutionID, &a.ItemID, &a.WarehouseID, &a.ReorderLevel,
		&a.QuantityAvailable, &a.TriggeredAt, &a.AcknowledgedAt, &ackBy, &a.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if ackBy != nil {
		a.AcknowledgedBy = *ackBy
	}
	return &a, nil
}
