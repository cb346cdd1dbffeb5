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

// consumedBatch registra cuánto salió de cada lote en una salida, para poder
// espejarlo en la bodega destino de un traslado.
type consumedBatch struct {
	batch *entity.Batch
	taken decimal.Decimal
}

// consumeBatches descuenta qty de los lotes consumibles del agregado, por
// vencimiento más próximo si byExpiry, si no por orden de recepción,
// derramando entre lotes. Si el restante total no cubre la salida es
// ErrBatchExhausted (el lote nunca queda negativo). Se llama dentro del lock
// del agregado.
func consumeBatches(ctx context.Context, r Repos, key entity.AggregateKey, byExpiry bool, qty decimal.Decimal) ([]consumedBatch, error) {
	batches, err := r.Batches.ListConsumable(ctx, key, byExpiry)
	if err != nil {
		return nil, err
	}
	remaining := qty
	var consumed []consumedBatch
	for _, b := range batches {
		if remaining.IsZero() {
			break
		}
		take := b.QuantityRemaining
		if take.GreaterThan(remaining) {
			take = remaining
		}
		if err := r.Batches.UpdateRemaining(ctx, b.ID, b.QuantityRemaining.Sub(take)); err != nil {
			return nil, err
		}
		consumed = append(consumed, consumedBatch{batch: b, taken: take})
		remaining = remaining.Sub(take)
	}
	if remaining.GreaterThan(decimal.Zero) {
		return nil, domain.ErrBatchExhausted
	}
	return consumed, nil
}

// receiveIntoBatch crea el lote de una recepción, o suma al lote existente si
// el número ya se usó en el agregado (recepciones parciales del mismo lote).
func receiveIntoBatch(ctx context.Context, r Repos, key entity.AggregateKey, item *entity.Item, in dto.ReceiveStockRequest, unitCost decimal.Decimal, now time.Time) (string, error) {
	existing, err := r.Batches.GetByNumber(ctx, key, in.BatchNumber)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if err := r.Batches.AddQuantity(ctx, existing.ID, in.Quantity); err != nil {
			return "", err
		}
		return existing.ID, nil
	}
	if item.HasExpiry && in.ExpiryDate == nil {
		return "", domain.ErrInvalidInput
	}
	b := &entity.Batch{
		ID:                uuid.New().String(),
		InstitutionID:     key.InstitutionID,
		ItemID:            key.ItemID,
		WarehouseID:       key.WarehouseID,
		BatchNumber:       in.BatchNumber,
		ManufactureDate:   in.ManufactureDate,
		ExpiryDate:        in.ExpiryDate,
		QuantityReceived:  in.Quantity,
		QuantityRemaining: in.Quantity,
		UnitCost:          unitCost,
		Status:            entity.BatchActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := r.Batches.Create(ctx, b); err != nil {
		return "", err
	}
	return b.ID, nil
}

// mirrorBatches acredita en el agregado destino lo consumido del origen en un
// traslado, lote por lote (mismo número, fechas y costo).
func mirrorBatches(ctx context.Context, r Repos, dstKey entity.AggregateKey, consumed []consumedBatch, now time.Time) error {
	for _, c := range consumed {
		existing, err := r.Batches.GetByNumber(ctx, dstKey, c.batch.BatchNumber)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := r.Batches.AddQuantity(ctx, existing.ID, c.taken); err != nil {
				return err
			}
			continue
		}
		if err := r.Batches.Create(ctx, &entity.Batch{
			ID:                uuid.New().String(),
			InstitutionID:     dstKey.InstitutionID,
			ItemID:            dstKey.ItemID,
			WarehouseID:       dstKey.WarehouseID,
			BatchNumber:       c.batch.BatchNumber,
			ManufactureDate:   c.batch.ManufactureDate,
			ExpiryDate:        c.batch.ExpiryDate,
			QuantityReceived:  c.taken,
			QuantityRemaining: c.taken,
			UnitCost:          c.batch.UnitCost,
			Status:            entity.BatchActive,
			CreatedAt:         now,
			UpdatedAt:         now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// MarkBatch retira un lote de circulación (expired, damaged, recalled). El
// restante del lote se descarga del stock como StockAdjusted decrease con el
// motivo indicado, y el lote queda marcado para que ninguna salida lo consuma.
// Items serializados no pasan por acá: sus unidades se retiran con Adjust y
// la lista explícita de seriales.
func (uc *CommandUseCase) MarkBatch(ctx context.Context, institutionID, userID string, in dto.MarkBatchRequest) (*dto.CommandResponse, error) {
	if in.ItemID == "" || in.WarehouseID == "" || in.BatchNumber == "" || in.IdempotencyKey == "" {
		return nil, domain.ErrInvalidInput
	}
	if in.Status != entity.BatchExpired && in.Status != entity.BatchDamaged && in.Status != entity.BatchRecalled {
		return nil, domain.ErrInvalidInput
	}
	item, err := uc.loadItem(ctx, institutionID, in.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.TrackBatches || item.TrackSerials {
		return nil, domain.ErrInvalidInput
	}
	if _, err := uc.loadWarehouse(ctx, institutionID, in.WarehouseID); err != nil {
		return nil, err
	}
	reason := in.Reason
	if reason == "" {
		reason = "lote " + in.Status
	}

	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: in.ItemID, WarehouseID: in.WarehouseID}
	now := time.Now()
	var seq int64

	err = uc.withAggregate(ctx, key, func(r Repos, p *entity.InventoryProjection) error {
		if err := checkIdempotency(ctx, r, key, in.IdempotencyKey); err != nil {
			return err
		}
		b, err := r.Batches.GetByNumber(ctx, key, in.BatchNumber)
		if err != nil {
			return err
		}
		if b == nil {
			return domain.ErrNotFound
		}
		if b.Status != entity.BatchActive {
			return domain.ErrInvalidInput
		}
		if b.QuantityRemaining.GreaterThan(decimal.Zero) {
			draft := entity.EventDraft{
				Type:           entity.EventStockAdjusted,
				IdempotencyKey: in.IdempotencyKey,
				OccurredAt:     now,
				RecordedBy:     userID,
				Payload: entity.EventPayload{
					Quantity:    b.QuantityRemaining,
					Direction:   entity.AdjustmentDecrease,
					Reason:      reason,
					BatchNumber: b.BatchNumber,
				},
			}
			e, err := appendAndFold(ctx, r, p, key, draft, policyFor(item))
			if err != nil {
				return err
			}
			seq = e.SequenceNumber
			if err := r.Batches.UpdateRemaining(ctx, b.ID, decimal.Zero); err != nil {
				return err
			}
		}
		return r.Batches.UpdateStatus(ctx, b.ID, in.Status)
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

// createSerials registra los seriales recibidos como disponibles.
func createSerials(ctx context.Context, r Repos, key entity.AggregateKey, serialNumbers []string, batchID string, now time.Time) error {
	serials := make([]*entity.Serial, 0, len(serialNumbers))
	for _, sn := range serialNumbers {
		serials = append(serials, &entity.Serial{
			ID:            uuid.New().String(),
			InstitutionID: key.InstitutionID,
			ItemID:        key.ItemID,
			WarehouseID:   key.WarehouseID,
			SerialNumber:  sn,
			BatchID:       batchID,
			Status:        entity.SerialAvailable,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return r.Serials.CreateMany(ctx, serials)
}

// transitionSerials mueve qty seriales de fromStatus a toStatus (y de bodega,
// en traslados). Si el caller indicó seriales explícitos se usan esos; si no,
// se seleccionan los más antiguos en fromStatus. Un serial fuera del estado
// esperado, o una selección corta, es ErrSerialUnavailable.
func transitionSerials(ctx context.Context, r Repos, key entity.AggregateKey, requested []string, qty decimal.Decimal, fromStatus, toStatus, toWarehouseID string) error {
	count := int(qty.IntPart())
	if len(requested) > 0 {
		for _, sn := range requested {
			s, err := r.Serials.GetBySerialNumber(ctx, key.InstitutionID, key.ItemID, sn)
			if err != nil {
				return err
			}
			if s == nil || s.WarehouseID != key.WarehouseID || s.Status != fromStatus {
				return domain.ErrSerialUnavailable
			}
			if s.Status != toStatus && !s.CanTransition(toStatus) {
				return domain.ErrSerialUnavailable
			}
			if err := r.Serials.UpdateStatus(ctx, s.ID, toStatus, toWarehouseID); err != nil {
				return err
			}
		}
		return nil
	}
	serials, err := r.Serials.ListByAggregate(ctx, key, fromStatus, count, 0)
	if err != nil {
		return err
	}
	if len(serials) < count {
		return domain.ErrSerialUnavailable
	}
	for _, s := range serials[:count] {
		if err := r.Serials.UpdateStatus(ctx, s.ID, toStatus, toWarehouseID); err != nil {
			return err
		}
	}
	return nil
}

// validateSerialCount exige, para items serializados, cantidad entera y que
// los seriales listados (si los hay) coincidan con la cantidad.
func validateSerialCount(item *entity.Item, qty decimal.Decimal, serialNumbers []string) error {
	if !item.TrackSerials {
		return nil
	}
	if !qty.Equal(qty.Truncate(0)) {
		return domain.ErrInvalidInput
	}
	if len(serialNumbers) > 0 && int64(len(serialNumbers)) != qty.IntPart() {
		return domain.ErrInvalidInput
	}
	return nil
}
