package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
	"github.com/jhoicas/ledger-inventario/internal/domain/repository"
)

var _ repository.BatchRepository = (*BatchRepo)(nil)

// BatchRepo implementación del sub-ledger de lotes sobre PostgreSQL
// (usable con pool o tx).
type BatchRepo struct {
	q Querier
}

// NewBatchRepository construye el adaptador de lotes. Pasar pool o tx (Querier).
func NewBatchRepository(q Querier) *BatchRepo {
	return &BatchRepo{q: q}
}

const batchColumns = `
	id, institution_id, item_id, warehouse_id, batch_number,
	manufacture_date, expiry_date, quantity_received, quantity_remaining,
	unit_cost, status, created_at, updated_at`

// Create inserta el lote. Número de lote único por (institución, item, bodega).
func (r *BatchRepo) Create(ctx context.Context, b *entity.Batch) error {
	query := `
		INSERT INTO batches (` + batchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.q.Exec(ctx, query,
		b.ID, b.InstitutionID, b.ItemID, b.WarehouseID, b.BatchNumber,
		b.ManufactureDate, b.ExpiryDate, b.QuantityReceived, b.QuantityRemaining,
		b.UnitCost, b.Status, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// GetByNumber busca el lote por número dentro del agregado. Devuelve nil si no existe.
func (r *BatchRepo) GetByNumber(ctx context.Context, key entity.AggregateKey, batchNumber string) (*entity.Batch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3
		  AND batch_number = $4`
	b, err := scanBatchRow(r.q.QueryRow(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID, batchNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

// ListConsumable devuelve los lotes activos con restante > 0, ordenados por
// vencimiento más próximo (byExpiry, NULLS LAST para lotes sin fecha) o por
// orden de recepción.
func (r *BatchRepo) ListConsumable(ctx context.Context, key entity.AggregateKey, byExpiry bool) ([]*entity.Batch, error) {
	order := "created_at ASC"
	if byExpiry {
		order = "expiry_date ASC NULLS LAST, created_at ASC"
	}
	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3
		  AND status = $4 AND quantity_remaining > 0
		ORDER BY ` + order
	rows, err := r.q.Query(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID, entity.BatchActive)
	if err != nil {
		return nil, fmt.Errorf("list consumable batches: %w", err)
	}
	defer rows.Close()
	return scanBatches(rows)
}

// UpdateRemaining fija la cantidad restante tras un consumo.
func (r *BatchRepo) UpdateRemaining(ctx context.Context, id string, remaining decimal.Decimal) error {
	query := `UPDATE batches SET quantity_remaining = $2, updated_at = now() WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, remaining)
	if err != nil {
		return fmt.Errorf("update batch remaining: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddQuantity suma qty a recibido y restante (recepción repetida al mismo
// número de lote o destino de un traslado).
func (r *BatchRepo) AddQuantity(ctx context.Context, id string, qty decimal.Decimal) error {
	query := `
		UPDATE batches
		SET quantity_received = quantity_received + $2,
		    quantity_remaining = quantity_remaining + $2,
		    updated_at = now()
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, qty)
	if err != nil {
		return fmt.Errorf("add batch quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus marca el lote (expired, damaged, recalled).
func (r *BatchRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE batches SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByAggregate lista los lotes del agregado, más recientes primero.
func (r *BatchRepo) ListByAggregate(ctx context.Context, key entity.AggregateKey, limit, offset int) ([]*entity.Batch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`
	rows, err := r.q.Query(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()
	return scanBatches(rows)
}

func scanBatchRow(row pgx.Row) (*entity.Batch, error) {
	var b entity.Batch
	err := row.Scan(
		&b.ID, &b.InstitutionID, &b.ItemID, &b.WarehouseID, &b.BatchNumber,
		&b.ManufactureDate, &b.ExpiryDate, &b.QuantityReceived, &b.QuantityRemaining,
		&b.UnitCost, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBatches(rows pgx.Rows) ([]*entity.Batch, error) {
	var out []*entity.Batch
	for rows.Next() {
		b, err := scanBatchRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterar lotes: %w", err)
	}
	return out, nil
}
