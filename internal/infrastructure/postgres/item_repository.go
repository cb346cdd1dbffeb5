package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
	"github.com/jhoicas/ledger-inventario/internal/domain/repository"
)

var _ repository.ItemRepository = (*ItemRepo)(nil)

// ItemRepo implementación del catálogo de items sobre PostgreSQL.
type ItemRepo struct {
	q Querier
}

// NewItemRepository construye el adaptador del catálogo. Pasar pool o tx (Querier).
func NewItemRepository(q Querier) *ItemRepo {
	return &ItemRepo{q: q}
}

const itemColumns = `
	id, institution_id, sku, name, description, unit_measure,
	valuation_method, allow_negative_stock, track_batches, track_serials,
	has_expiry, price, deleted_at, created_at, updated_at`

// Create inserta el item. SKU único por institución.
func (r *ItemRepo) Create(ctx context.Context, item *entity.Item) error {
	query := `
		INSERT INTO items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.q.Exec(ctx, query,
		item.ID, item.InstitutionID, item.SKU, item.Name, item.Description, item.UnitMeasure,
		item.ValuationMethod, item.AllowNegativeStock, item.TrackBatches, item.TrackSerials,
		item.HasExpiry, item.Price, item.DeletedAt, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// GetByID obtiene el item por ID (incluye tombstoneados; el caso de uso decide).
func (r *ItemRepo) GetByID(ctx context.Context, id string) (*entity.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// GetBySKU obtiene el item activo por SKU normalizado dentro de la institución.
func (r *ItemRepo) GetBySKU(ctx context.Context, institutionID, sku string) (*entity.Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE institution_id = $1 AND sku = $2 AND deleted_at IS NULL`
	return r.scanOne(r.q.QueryRow(ctx, query, institutionID, sku))
}

// List lista los items activos de la institución con paginación.
func (r *ItemRepo) List(ctx context.Context, institutionID string, limit, offset int) ([]*entity.Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE institution_id = $1 AND deleted_at IS NULL
		ORDER BY sku
		LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(ctx, query, institutionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []*entity.Item
	for rows.Next() {
		item, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterar items: %w", err)
	}
	return out, nil
}

// Update actualiza los campos editables del item. Las banderas de política
// (valuación, trazabilidad) son inmutables después de crear.
func (r *ItemRepo) Update(ctx context.Context, item *entity.Item) error {
	query := `
		UPDATE items
		SET name = $2, description = $3, unit_measure = $4,
		    allow_negative_stock = $5, price = $6, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.q.Exec(ctx, query,
		item.ID, item.Name, item.Description, item.UnitMeasure,
		item.AllowNegativeStock, item.Price,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SoftDelete tombstonea el item; su historial de eventos queda intacto.
func (r *ItemRepo) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE items SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("soft delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ItemRepo) scanOne(row pgx.Row) (*entity.Item, error) {
	var item entity.Item
	err := row.Scan(
		&item.ID, &item.InstitutionID, &item.SKU, &item.Name, &item.Description, &item.UnitMeasure,
		&item.ValuationMethod, &item.AllowNegativeStock, &item.TrackBatches, &item.TrackSerials,
		&item.HasExpiry, &item.Price, &item.DeletedAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	return &item, nil
}
