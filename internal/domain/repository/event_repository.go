package repository

import (
	"context"

	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// EventRepository define el puerto del event store. El log es append-only:
// el puerto no expone update ni delete a propósito (invariante estructural,
// no un chequeo en runtime que el caller pueda saltarse).
type EventRepository interface {
	// Append persiste un evento ya secuenciado. La unicidad de
	// (agregado, sequence_number) y de (agregado, idempotency_key) la
	// garantiza el almacén; sus violaciones se mapean a ErrStaleProjection
	// y ErrDuplicateEvent respectivamente.
	Append(ctx context.Context, e *entity.Event) error

	// ExistsIdempotencyKey indica si la clave ya fue usada en el agregado
	// (reenvío por retry de red).
	ExistsIdempotencyKey(ctx context.Context, key entity.AggregateKey, idempotencyKey string) (bool, error)

	// ListByAggregate devuelve los eventos del agregado en orden de secuencia
	// ascendente. asOfSequence > 0 limita hasta esa secuencia inclusive.
	ListByAggregate(ctx context.Context, key entity.AggregateKey, asOfSequence int64) ([]*entity.Event, error)

	// ListByAggregatePaged es la vista paginada para la API de historial.
	ListByAggregatePaged(ctx context.Context, key entity.AggregateKey, limit, offset int) ([]*entity.Event, error)
}
