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

var _ repository.ReservationRepository = (*ReservationRepo)(nil)

// ReservationRepo implementación de ReservationRepository sobre PostgreSQL
// (usable con pool o tx).
type ReservationRepo struct {
	q Querier
}

// NewReservationRepository construye el adaptador de reservas. Pasar pool o tx (Querier).
func NewReservationRepository(q Querier) *ReservationRepo {
	return &ReservationRepo{q: q}
}

// Create inserta la reserva. Un índice único parcial sobre
// (institution_id, item_id, warehouse_id, order_ref) WHERE status = 'reserved'
// garantiza a lo sumo una reserva activa por orden en el agregado.
func (r *ReservationRepo) Create(ctx context.Context, res *entity.Reservation) error {
	query := `
		INSERT INTO reservations (
			id, institution_id, item_id, warehouse_id, order_ref,
			quantity, status, created_at, updated_at, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, query,
		res.ID, res.InstitutionID, res.ItemID, res.WarehouseID, res.OrderRef,
		res.Quantity, res.Status, res.CreatedAt, res.UpdatedAt, res.CreatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

// GetActiveByOrderRef devuelve la reserva en estado reserved para la orden, o nil.
func (r *ReservationRepo) GetActiveByOrderRef(ctx context.Context, key entity.AggregateKey, orderRef string) (*entity.Reservation, error) {
	query := `
		SELECT id, institution_id, item_id, warehouse_id, order_ref,
		       quantity, status, created_at, updated_at, created_by
		FROM reservations
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3
		  AND order_ref = $4 AND status = $5`
	var res entity.Reservation
	err := r.q.QueryRow(ctx, query,
		key.InstitutionID, key.ItemID, key.WarehouseID, orderRef, entity.ReservationReserved,
	).Scan(
		&res.ID, &res.InstitutionID, &res.ItemID, &res.WarehouseID, &res.OrderRef,
		&res.Quantity, &res.Status, &res.CreatedAt, &res.UpdatedAt, &res.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active reservation: %w", err)
	}
	return &res, nil
}

// Update persiste cantidad y estado tras un despacho o liberación parcial.
func (r *ReservationRepo) Update(ctx context.Context, res *entity.Reservation) error {
	query := `
		UPDATE reservations
		SET quantity = $2, status = $3, updated_at = now()
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, res.ID, res.Quantity, res.Status)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

// ListByAggregate lista las reservas del agregado, más recientes primero.
func (r *ReservationRepo) ListByAggregate(ctx context.Context, key entity.AggregateKey, limit, offset int) ([]*entity.Reservation, error) {
	query := `
		SELECT id, institution_id, item_id, warehouse_id, order_ref,
		       quantity, status, created_at, updated_at, created_by
		FROM reservations
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`
	rows, err := r.q.Query(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []*entity.Reservation
	for rows.Next() {
		var res entity.Reservation
		if err := rows.Scan(
			&res.ID, &res.InstitutionID, &res.ItemID, &res.WarehouseID, &res.OrderRef,
			&res.Quantity, &res.Status, &res.CreatedAt, &res.UpdatedAt, &res.CreatedBy,
		); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterar reservas: %w", err)
	}
	return out, nil
}
