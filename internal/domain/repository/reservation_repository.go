package repository

import (
	"context"

	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// ReservationRepository define el puerto de reservas. La fuente de verdad
// sigue siendo el log; la tabla resuelve búsquedas por referencia de orden.
type ReservationRepository interface {
	Create(ctx context.Context, r *entity.Reservation) error

	// GetActiveByOrderRef devuelve la reserva en estado reserved para la
	// orden en el agregado, o nil si no hay.
	GetActiveByOrderRef(ctx context.Context, key entity.AggregateKey, orderRef string) (*entity.Reservation, error)

	// Update persiste cantidad/estado tras un despacho o liberación.
	Update(ctx context.Context, r *entity.Reservation) error

	ListByAggregate(ctx context.Context, key entity.AggregateKey, limit, offset int) ([]*entity.Reservation, error)
}
