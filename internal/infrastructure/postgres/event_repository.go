package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
	"github.com/jhoicas/ledger-inventario/internal/domain/repository"
)

var _ repository.EventRepository = (*EventRepo)(nil)

// EventRepo implementación del event store sobre PostgreSQL (usable con pool o tx).
// La tabla inventory_events solo recibe INSERT; no hay UPDATE ni DELETE en
// ninguna ruta de código.
type EventRepo struct {
	q Querier
}

// NewEventRepository construye el adaptador del event store. Pasar pool o tx (Querier).
func NewEventRepository(q Querier) *EventRepo {
	return &EventRepo{q: q}
}

// Append inserta el evento. La unicidad la garantizan dos constraints:
// uq_inventory_events_sequence sobre (institution_id, item_id, warehouse_id,
// sequence_number) y uq_inventory_events_idempotency sobre (institution_id,
// item_id, warehouse_id, idempotency_key).
func (r *EventRepo) Append(ctx context.Context, e *entity.Event) error {
	query := `
		INSERT INTO inventory_events (
			id, institution_id, aggregate_type, item_id, warehouse_id,
			event_type, sequence_number, idempotency_key, payload,
			occurred_at, recorded_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.Exec(ctx, query,
		e.ID, e.InstitutionID, e.AggregateType, e.ItemID, e.WarehouseID,
		e.Type, e.SequenceNumber, e.IdempotencyKey, e.Payload,
		e.OccurredAt, e.RecordedBy,
	)
	if err != nil {
		if uniqueViolationOn(err, "uq_inventory_events_idempotency") {
			return domain.ErrDuplicateEvent
		}
		if uniqueViolationOn(err, "uq_inventory_events_sequence") {
			// Otro escritor ganó la secuencia: el caller reintenta desde la proyección fresca.
			return domain.ErrStaleProjection
		}
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEvent
		}
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ExistsIdempotencyKey indica si la clave ya fue usada en el agregado.
func (r *EventRepo) ExistsIdempotencyKey(ctx context.Context, key entity.AggregateKey, idempotencyKey string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM inventory_events
			WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3
			  AND idempotency_key = $4
		)`
	var exists bool
	err := r.q.QueryRow(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID, idempotencyKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists idempotency key: %w", err)
	}
	return exists, nil
}

// ListByAggregate devuelve los eventos del agregado en orden de secuencia.
// asOfSequence > 0 corta la lectura en esa secuencia inclusive (replay as-of).
func (r *EventRepo) ListByAggregate(ctx context.Context, key entity.AggregateKey, asOfSequence int64) ([]*entity.Event, error) {
	query := `
		SELECT id, institution_id, aggregate_type, item_id, warehouse_id,
		       event_type, sequence_number, idempotency_key, payload,
		       occurred_at, recorded_by
		FROM inventory_events
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3
		  AND ($4::bigint <= 0 OR sequence_number <= $4)
		ORDER BY sequence_number ASC`
	rows, err := r.q.Query(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID, asOfSequence)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByAggregatePaged es la vista paginada para la API de historial
// (orden descendente: lo más reciente primero).
func (r *EventRepo) ListByAggregatePaged(ctx context.Context, key entity.AggregateKey, limit, offset int) ([]*entity.Event, error) {
	query := `
		SELECT id, institution_id, aggregate_type, item_id, warehouse_id,
		       event_type, sequence_number, idempotency_key, payload,
		       occurred_at, recorded_by
		FROM inventory_events
		WHERE institution_id = $1 AND item_id = $2 AND warehouse_id = $3
		ORDER BY sequence_number DESC
		LIMIT $4 OFFSET $5`
	rows, err := r.q.Query(ctx, query, key.InstitutionID, key.ItemID, key.WarehouseID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list events paged: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]*entity.Event, error) {
	var events []*entity.Event
	for rows.Next() {
		var e entity.Event
		if err := rows.Scan(
			&e.ID, &e.InstitutionID, &e.AggregateType, &e.ItemID, &e.WarehouseID,
			&e.Type, &e.SequenceNumber, &e.IdempotencyKey, &e.Payload,
			&e.OccurredAt, &e.RecordedBy,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterar eventos: %w", err)
	}
	return events, nil
}
