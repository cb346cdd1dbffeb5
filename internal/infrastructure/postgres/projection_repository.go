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

var _ repository.ProjectionRepository = (*ProjectionRepo)(nil)

// ProjectionRepo implementación del snapshot por (item, bodega) sobre
// PostgreSQL (usable con pool o tx). La fila es la unidad de bloqueo del
// agregado: GetForUpdate solo tiene sentido dentro de una transacción.
type ProjectionRepo struct {
	q Querier
}

// NewProjectionRepository construye el adaptador de proyecciones. Pasar pool o tx (Querier).
func NewProjectionRepository(q Querier) *ProjectionRepo {
	return &ProjectionRepo{q: q}
}

const projectionColumns = `
	institution_id, item_id, warehouse_id,
	quantity_on_hand, quantity_available, quantity_reserved,
	average_cost, total_value, cost_layers,
	last_event_sequence, version, updated_at`

// Get lee la proyección sin bloquear. Devuelve nil si aún no existe.
func (r *ProjectionRepo) Get(ctx context.Context, key entity.AggregateKey) (*entity.InventoryProjection, error) {
	query := `
		SELECT ` + projectionColumns + `
		FROM inventory_projections
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3`
	p, err := r.scanOne(r.q.QueryRow(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get projection: %w", err)
	}
	return p, nil
}

// EnsureExists crea perezosamente la fila en cero si no existe, para que
// GetForUpdate tenga qué bloquear en el primer evento del agregado.
func (r *ProjectionRepo) EnsureExists(ctx context.Context, key entity.AggregateKey) error {
	query := `
		INSERT INTO inventory_projections (
			institution_id, item_id, warehouse_id,
			quantity_on_hand, quantity_available, quantity_reserved,
			average_cost, total_value, cost_layers,
			last_event_sequence, version, updated_at
		) VALUES ($1, $2, $3, 0, 0, 0, 0, 0, NULL, 0, 0, now())
		ON CONFLICT (institution_id, item_id, warehouse_id) DO NOTHING`
	_, err := r.q.Exec(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID)
	if err != nil {
		return fmt.Errorf("ensure projection: %w", err)
	}
	return nil
}

// GetForUpdate bloquea la fila del agregado con espera acotada. Un lock
// vencido (55P03) se reporta como ErrAggregateLockTimeout para que la capa
// de comandos reintente.
func (r *ProjectionRepo) GetForUpdate(ctx context.Context, key entity.AggregateKey, lockTimeout time.Duration) (*entity.InventoryProjection, error) {
	// SET LOCAL solo vive dentro de la transacción actual
	setQuery := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())
	if _, err := r.q.Exec(ctx, setQuery); err != nil {
		return nil, fmt.Errorf("set lock_timeout: %w", err)
	}

	query := `
		SELECT ` + projectionColumns + `
		FROM inventory_projections
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3
		FOR UPDATE`
	p, err := r.scanOne(r.q.QueryRow(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID))
	if err != nil {
		if isLockTimeout(err) {
			return nil, domain.ErrAggregateLockTimeout
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get projection for update: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get projection for update: %w", err)
	}
	return p, nil
}

// Update persiste la proyección verificando el contador optimista. Cero filas
// afectadas significa que otro escritor avanzó la versión: ErrStaleProjection.
func (r *ProjectionRepo) Update(ctx context.Context, p *entity.InventoryProjection, expectedVersion int64) error {
	query := `
		UPDATE inventory_projections SET
			quantity_on_hand = $4, quantity_available = $5, quantity_reserved = $6,
			average_cost = $7, total_value = $8, cost_layers = $9,
			last_event_sequence = $10, version = $11, updated_at = $12
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3
		  AND version = $13`
	tag, err := r.q.Exec(ctx, query,
		p.InstitutionID, p.ItemID, p.WarehouseID,
		p.QuantityOnHand, p.QuantityAvailable, p.QuantityReserved,
		p.AverageCost, p.TotalValue, costLayersParam(p.CostLayers),
		p.LastEventSequence, p.Version, p.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update projection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleProjection
	}
	return nil
}

// ListByWarehouse lista las proyecciones de una bodega (lectura sin lock).
func (r *ProjectionRepo) ListByWarehouse(ctx context.Context, institutionID, warehouseID string, limit, offset int) ([]*entity.InventoryProjection, error) {
	query := `
		SELECT ` + projectionColumns + `
		FROM inventory_projections
		WHERE institution_id = $1 AND warehouse_id = $2
		ORDER BY item_id
		LIMIT $3 OFFSET $4`
	rows, err := r.q.Query(ctx, query, institutionID, warehouseID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list projections: %w", err)
	}
	defer rows.Close()

	var out []*entity.InventoryProjection
	for rows.Next() {
		p, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("scan projection: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterar proyecciones: %w", err)
	}
	return out, nil
}

func (r *ProjectionRepo) scanOne(row pgx.Row) (*entity.InventoryProjection, error) {
	var p entity.InventoryProjection
	var layers []entity.CostLayer
	err := row.Scan(
		&p.InstitutionID, &p.ItemID, &p.WarehouseID,
		&p.QuantityOnHand, &p.QuantityAvailable, &p.QuantityReserved,
		&p.AverageCost, &p.TotalValue, &layers,
		&p.LastEventSequence, &p.Version, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CostLayers = layers
	return &p, nil
}

// costLayersParam devuelve NULL para proyecciones sin capas (promedio
// ponderado) en lugar de un arreglo JSON vacío.
func costLayersParam(layers []entity.CostLayer) any {
	if len(layers) == 0 {
		return nil
	}
	return layers
}
