package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-inventario/internal/application/dto"
	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// Reserve aparta stock disponible contra una orden (StockReserved). La
// verificación de disponible y la emisión del evento son atómicas bajo el
// lock del agregado: dos reservas concurrentes serializan y la segunda ve el
// disponible ya descontado.
func (uc *CommandUseCase) Reserve(ctx context.Context, institutionID, userID string, in dto.ReserveStockRequest) (*dto.CommandResponse, error) {
	if in.ItemID == "" || in.WarehouseID == "" || in.OrderRef == "" || in.IdempotencyKey == "" {
		return nil, domain.ErrInvalidInput
	}
	if !in.Quantity.GreaterThan(decimal.Zero) {
		return nil, domain.ErrInvalidInput
	}
	item, err := uc.loadItem(ctx, institutionID, in.ItemID)
	if err != nil {
		return nil, err
	}
	if _, err := uc.loadWarehouse(ctx, institutionID, in.WarehouseID); err != nil {
		return nil, err
	}
	if err := validateSerialCount(item, in.Quantity, in.SerialNumbers); err != nil {
		return nil, err
	}

	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: in.ItemID, WarehouseID: in.WarehouseID}
	now := time.Now()
	var seq int64

	err = uc.withAggregate(ctx, key, func(r Repos, p *entity.InventoryProjection) error {
		if err := checkIdempotency(ctx, r, key, in.IdempotencyKey); err != nil {
			return err
		}
		// Una sola reserva activa por (agregado, orden)
		existing, err := r.Reservations.GetActiveByOrderRef(ctx, key, in.OrderRef)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicate
		}
		draft := entity.EventDraft{
			Type:           entity.EventStockReserved,
			IdempotencyKey: in.IdempotencyKey,
			OccurredAt:     now,
			RecordedBy:     userID,
			Payload: entity.EventPayload{
				Quantity:      in.Quantity,
				OrderRef:      in.OrderRef,
				SerialNumbers: in.SerialNumbers,
			},
		}
		e, err := appendAndFold(ctx, r, p, key, draft, policyFor(item))
		if err != nil {
			return err
		}
		seq = e.SequenceNumber

		if item.TrackSerials {
			if err := transitionSerials(ctx, r, key, in.SerialNumbers, in.Quantity,
				entity.SerialAvailable, entity.SerialReserved, key.WarehouseID); err != nil {
				return err
			}
		}
		return r.Reservations.Create(ctx, &entity.Reservation{
			ID:            uuid.New().String(),
			InstitutionID: institutionID,
			ItemID:        in.ItemID,
			WarehouseID:   in.WarehouseID,
			OrderRef:      in.OrderRef,
			Quantity:      in.Quantity,
			Status:        entity.ReservationReserved,
			CreatedAt:     now,
			UpdatedAt:     now,
			CreatedBy:     userID,
		})
	})
	if errors.Is(err, domain.ErrDuplicateEvent) {
		return &dto.CommandResponse{Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	uc.evaluateAlerts(ctx, key)
	return &dto.CommandResponse{SequenceNumber: seq}, nil
}

// Release libera (total o parcialmente) una reserva activa
// (ReservationReleased). Solo es sucesor válido de Reserved.
func (uc *CommandUseCase) Release(ctx context.Context, institutionID, userID string, in dto.ReleaseReservationRequest) (*dto.CommandResponse, error) {
	if in.ItemID == "" || in.WarehouseID == "" || in.OrderRef == "" || in.IdempotencyKey == "" {
		return nil, domain.ErrInvalidInput
	}
	if !in.Quantity.GreaterThan(decimal.Zero) {
		return nil, domain.ErrInvalidInput
	}
	item, err := uc.loadItem(ctx, institutionID, in.ItemID)
	if err != nil {
		return nil, err
	}
	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: in.ItemID, WarehouseID: in.WarehouseID}
	now := time.Now()
	var seq int64

	err = uc.withAggregate(ctx, key, func(r Repos, p *entity.InventoryProjection) error {
		if err := checkIdempotency(ctx, r, key, in.IdempotencyKey); err != nil {
			return err
		}
		res, err := r.Reservations.GetActiveByOrderRef(ctx, key, in.OrderRef)
		if err != nil {
			return err
		}
		if res == nil {
			return domain.ErrReservationNotFound
		}
		if in.Quantity.GreaterThan(res.Quantity) {
			return domain.ErrInvalidReservationState
		}
		draft := entity.EventDraft{
			Type:           entity.EventReservationReleased,
			IdempotencyKey: in.IdempotencyKey,
			OccurredAt:     now,
			RecordedBy:     userID,
			Payload:        entity.EventPayload{Quantity: in.Quantity, OrderRef: in.OrderRef},
		}
		e, err := appendAndFold(ctx, r, p, key, draft, policyFor(item))
		if err != nil {
			return err
		}
		seq = e.SequenceNumber

		if item.TrackSerials {
			if err := transitionSerials(ctx, r, key, nil, in.Quantity,
				entity.SerialReserved, entity.SerialAvailable, key.WarehouseID); err != nil {
				return err
			}
		}
		res.Quantity = res.Quantity.Sub(in.Quantity)
		res.UpdatedAt = now
		if res.Quantity.IsZero() {
			res.Status = entity.ReservationReleased
		}
		return r.Reservations.Update(ctx, res)
	})
	if errors.Is(err, domain.ErrDuplicateEvent) {
		return &dto.CommandResponse{Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	uc.evaluateAlerts(ctx, key)
	return &dto.CommandResponse{SequenceNumber: seq}, nil
}

// Ship despacha stock reservado (StockShipped): consume la reserva y el
// on-hand, reconoce costo por capas FIFO o promedio, y cierra la reserva si
// queda en cero. Solo es sucesor válido de Reserved.
func (uc *CommandUseCase) Ship(ctx context.Context, institutionID, userID string, in dto.ShipStockRequest) (*dto.CommandResponse, error) {
	if in.ItemID == "" || in.WarehouseID == "" || in.OrderRef == "" || in.IdempotencyKey == "" {
		return nil, domain.ErrInvalidInput
	}
	if !in.Quantity.GreaterThan(decimal.Zero) {
		return nil, domain.ErrInvalidInput
	}
	item, err := uc.loadItem(ctx, institutionID, in.ItemID)
	if err != nil {
		return nil, err
	}
	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: in.ItemID, WarehouseID: in.WarehouseID}
	now := time.Now()
	var seq int64

	err = uc.withAggregate(ctx, key, func(r Repos, p *entity.InventoryProjection) error {
		if err := checkIdempotency(ctx, r, key, in.IdempotencyKey); err != nil {
			return err
		}
		res, err := r.Reservations.GetActiveByOrderRef(ctx, key, in.OrderRef)
		if err != nil {
			return err
		}
		if res == nil {
			return domain.ErrReservationNotFound
		}
		if in.Quantity.GreaterThan(res.Quantity) {
			return domain.ErrInvalidReservationState
		}
		draft := entity.EventDraft{
			Type:           entity.EventStockShipped,
			IdempotencyKey: in.IdempotencyKey,
			OccurredAt:     now,
			RecordedBy:     userID,
			Payload:        entity.EventPayload{Quantity: in.Quantity, OrderRef: in.OrderRef},
		}
		e, err := appendAndFold(ctx, r, p, key, draft, policyFor(item))
		if err != nil {
			return err
		}
		seq = e.SequenceNumber

		if item.TrackBatches {
			if _, err := consumeBatches(ctx, r, key, item.HasExpiry, in.Quantity); err != nil {
				return err
			}
		}
		if item.TrackSerials {
			if err := transitionSerials(ctx, r, key, nil, in.Quantity,
				entity.SerialReserved, entity.SerialSold, key.WarehouseID); err != nil {
				return err
			}
		}
		res.Quantity = res.Quantity.Sub(in.Quantity)
		res.UpdatedAt = now
		if res.Quantity.IsZero() {
			res.Status = entity.ReservationShipped
		}
		return r.Reservations.Update(ctx, res)
	})
	if errors.Is(err, domain.ErrDuplicateEvent) {
		return &dto.CommandResponse{Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	uc.evaluateAlerts(ctx, key)
	return &dto.CommandResponse{SequenceNumber: seq}, nil
}
