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

var _ repository.SerialRepository = (*SerialRepo)(nil)

// SerialRepo implementación de trazabilidad por unidad sobre PostgreSQL
// (usable con pool o tx).
type SerialRepo struct {
	q Querier
}

// NewSerialRepository construye el adaptador de seriales. Pasar pool o tx (Querier).
func NewSerialRepository(q Querier) *SerialRepo {
	return &SerialRepo{q: q}
}

const serialColumns = `
	id, institution_id, item_id, warehouse_id, serial_number,
	batch_id, status, created_at, updated_at`

// CreateMany inserta los seriales de una recepción. Serial único por
// (institución, item); el duplicado se reporta como ErrDuplicate.
func (r *SerialRepo) CreateMany(ctx context.Context, serials []*entity.Serial) error {
	query := `
		INSERT INTO serials (` + serialColumns + `)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)`
	for _, s := range serials {
		_, err := r.q.Exec(ctx, query,
			s.ID, s.InstitutionID, s.ItemID, s.WarehouseID, s.SerialNumber,
			s.BatchID, s.Status, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("serial %s: %w", s.SerialNumber, domain.ErrDuplicate)
			}
			return fmt.Errorf("create serial %s: %w", s.SerialNumber, err)
		}
	}
	return nil
}

// GetBySerialNumber busca el serial dentro de institución+item. Devuelve nil si no existe.
func (r *SerialRepo) GetBySerialNumber(ctx context.Context, institutionID, itemID, serialNumber string) (*entity.Serial, error) {
	query := `
		SELECT ` + serialColumns + `
		FROM serials
		WHERE institution_id = $1 AND item_id = $2 AND serial_number = $3`
	s, err := scanSerialRow(r.q.QueryRow(ctx, query, institutionID, itemID, serialNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get serial: %w", err)
	}
	return s, nil
}

// UpdateStatus mueve el serial de estado y, en traslados, de bodega.
func (r *SerialRepo) UpdateStatus(ctx context.Context, id, status, warehouseID string) error {
	query := `
		UPDATE serials
		SET status = $2, warehouse_id = $3, updated_at = now()
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, status, warehouseID)
	if err != nil {
		return fmt.Errorf("update serial status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByAggregate lista seriales del agregado; status vacío no filtra.
// El orden ascendente por creación hace determinista la autoselección de
// los N más antiguos.
func (r *SerialRepo) ListByAggregate(ctx context.Context, key entity.AggregateKey, status string, limit, offset int) ([]*entity.Serial, error) {
	query := `
		SELECT ` + serialColumns + `
		FROM serials
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3
		  AND ($4 = '' OR status = $4)
		ORDER BY created_at ASC, serial_number ASC
		LIMIT $5 OFFSET $6`
	rows, err := r.q.Query(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list serials: %w", err)
	}
	defer rows.Close()

	var out []*entity.Serial
	for rows.Next() {
		s, err := scanSerialRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan serial: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterar seriales: %w", err)
	}
	return out, nil
}

func scanSerialRow(row pgx.Row) (*entity.Serial, error) {
	var s entity.Serial
	var batchID *string
	err := row.Scan(
		&s.ID, &s.InstitutionID, &s.ItemID, &s.WarehouseID, &s.SerialNumber,
		&batchID, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if batchID != nil {
		s.BatchID = *batchID
	}
	return &s, nil
}
