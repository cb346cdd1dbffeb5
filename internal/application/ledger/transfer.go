package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-inventario/internal/application/dto"
	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/costing"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// Transfer traslada stock entre bodegas: StockTransferredOut en el agregado
// origen y StockTransferredIn en el destino, correlacionados por TransferID,
// dentro de UNA transacción. Los dos agregados se bloquean en orden
// determinista de clave para evitar deadlocks AB/BA. Nunca queda el origen
// descontado sin el destino acreditado: el on-hand total del sistema no
// cambia por un traslado.
func (uc *CommandUseCase) Transfer(ctx context.Context, institutionID, userID string, in dto.TransferStockRequest) (*dto.CommandResponse, error) {
	if in.ItemID == "" || in.FromWarehouseID == "" || in.ToWarehouseID == "" || in.IdempotencyKey == "" {
		return nil, domain.ErrInvalidInput
	}
	if in.FromWarehouseID == in.ToWarehouseID || !in.Quantity.GreaterThan(decimal.Zero) {
		return nil, domain.ErrInvalidInput
	}
	item, err := uc.loadItem(ctx, institutionID, in.ItemID)
	if err != nil {
		return nil, err
	}
	if _, err := uc.loadWarehouse(ctx, institutionID, in.FromWarehouseID); err != nil {
		return nil, err
	}
	if _, err := uc.loadWarehouse(ctx, institutionID, in.ToWarehouseID); err != nil {
		return nil, err
	}
	if err := validateSerialCount(item, in.Quantity, nil); err != nil {
		return nil, err
	}

	srcKey := entity.AggregateKey{InstitutionID: institutionID, ItemID: in.ItemID, WarehouseID: in.FromWarehouseID}
	dstKey := entity.AggregateKey{InstitutionID: institutionID, ItemID: in.ItemID, WarehouseID: in.ToWarehouseID}
	pol := policyFor(item)
	transferID := uuid.New().String()
	now := time.Now()
	var outSeq int64

	err = uc.withTwoAggregates(ctx, srcKey, dstKey, func(r Repos, src, dst *entity.InventoryProjection) error {
		if err := checkIdempotency(ctx, r, srcKey, in.IdempotencyKey); err != nil {
			return err
		}

		// Costo de traslado: lo que realmente sale del origen. Bajo FIFO se
		// precalcula consumiendo una copia de las capas; bajo promedio es el
		// costo promedio vigente del origen. Si las capas no alcanzan el fold
		// rechazaría igual el evento, así que acá se corta de una.
		unitCost := src.AverageCost
		if pol.ValuationMethod == entity.ValuationFIFO {
			layers := make([]entity.CostLayer, len(src.CostLayers))
			copy(layers, src.CostLayers)
			_, cogs, err := costing.ConsumeLayers(layers, in.Quantity)
			if err != nil {
				return err
			}
			unitCost = cogs.Div(in.Quantity)
		}

		outDraft := entity.EventDraft{
			Type:           entity.EventStockTransferredOut,
			IdempotencyKey: in.IdempotencyKey,
			OccurredAt:     now,
			RecordedBy:     userID,
			Payload: entity.EventPayload{
				Quantity:   in.Quantity,
				UnitCost:   &unitCost,
				TransferID: transferID,
			},
		}
		outEvent, err := appendAndFold(ctx, r, src, srcKey, outDraft, pol)
		if err != nil {
			return err
		}
		outSeq = outEvent.SequenceNumber

		inDraft := entity.EventDraft{
			Type:           entity.EventStockTransferredIn,
			IdempotencyKey: in.IdempotencyKey,
			OccurredAt:     now,
			RecordedBy:     userID,
			Payload: entity.EventPayload{
				Quantity:   in.Quantity,
				UnitCost:   &unitCost,
				TransferID: transferID,
			},
		}
		if _, err := appendAndFold(ctx, r, dst, dstKey, inDraft, pol); err != nil {
			return err
		}

		if item.TrackBatches {
			consumed, err := consumeBatches(ctx, r, srcKey, item.HasExpiry, in.Quantity)
			if err != nil {
				return err
			}
			if err := mirrorBatches(ctx, r, dstKey, consumed, now); err != nil {
				return err
			}
		}
		if item.TrackSerials {
			// Los seriales viajan disponibles: solo cambia la bodega.
			return transitionSerials(ctx, r, srcKey, nil, in.Quantity,
				entity.SerialAvailable, entity.SerialAvailable, in.ToWarehouseID)
		}
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateEvent) {
		return &dto.CommandResponse{Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	uc.evaluateAlerts(ctx, srcKey)
	uc.evaluateAlerts(ctx, dstKey)
	return &dto.CommandResponse{SequenceNumber: outSeq, TransferID: transferID}, nil
}

// withTwoAggregates es la variante de withAggregate para traslados: bloquea
// las dos filas en orden determinista de clave dentro de la misma transacción.
func (uc *CommandUseCase) withTwoAggregates(ctx context.Context, a, b entity.AggregateKey, fn func(r Repos, pa, pb *entity.InventoryProjection) error) error {
	first, second := a, b
	if second.String() < first.String() {
		first, second = second, first
	}
	var lastErr error
	for attempt := 0; attempt <= uc.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * uc.cfg.RetryBackoff
			uc.log.Warn().
				Str("source", a.String()).
				Str("destination", b.String()).
				Int("attempt", attempt).
				Msg("conflicto en traslado, reintentando")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		err := uc.txRunner.Run(ctx, func(r Repos) error {
			if err := r.Projections.EnsureExists(ctx, first); err != nil {
				return err
			}
			if err := r.Projections.EnsureExists(ctx, second); err != nil {
				return err
			}
			p1, err := r.Projections.GetForUpdate(ctx, first, uc.cfg.LockTimeout)
			if err != nil {
				return err
			}
			p2, err := r.Projections.GetForUpdate(ctx, second, uc.cfg.LockTimeout)
			if err != nil {
				return err
			}
			pa, pb := p1, p2
			if first != a {
				pa, pb = p2, p1
			}
			return fn(r, pa, pb)
		})
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) {
			return err
		}
		lastErr = err
	}
	uc.log.Error().
		Str("source", a.String()).
		Str("destination", b.String()).
		Err(lastErr).
		Msg("traslado agotó los reintentos por conflicto")
	return domain.ErrConflict
}
