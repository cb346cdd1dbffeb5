// Package ledger implementa la capa de comandos del ledger de inventario:
// valida, convierte el comando en eventos, los appendea dentro de una
// transacción con el lock del agregado y pliega la proyección en el mismo
// commit. Los conflictos transitorios se reintentan con backoff acotado.
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
	domledger "github.com/jhoicas/ledger-inventario/internal/domain/ledger"
	"github.com/jhoicas/ledger-inventario/internal/domain/repository"
	"github.com/jhoicas/ledger-inventario/pkg/logger"
)

// CommandUseCase ejecuta los comandos del ledger (receive, adjust, reserve,
// release, ship, transfer) de forma transaccional con bloqueo por agregado.
type CommandUseCase struct {
	txRunner      TxRunner
	itemRepo      repository.ItemRepository
	warehouseRepo repository.WarehouseRepository
	alerts        AlertEvaluator
	cfg           Config
	log           *logger.Logger
}

// NewCommandUseCase construye el caso de uso.
func NewCommandUseCase(
	txRunner TxRunner,
	itemRepo repository.ItemRepository,
	warehouseRepo repository.WarehouseRepository,
	alerts AlertEvaluator,
	cfg Config,
	log *logger.Logger,
) *CommandUseCase {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
	return &CommandUseCase{
		txRunner:      txRunner,
		itemRepo:      itemRepo,
		warehouseRepo: warehouseRepo,
		alerts:        alerts,
		cfg:           cfg,
		log:           log,
	}
}

// Receive registra una entrada de stock (StockReceived). Crea el lote si el
// item es trazado por lote y los seriales si es serializado.
func (uc *CommandUseCase) Receive(ctx context.Context, institutionID, userID string, in dto.ReceiveStockRequest) (*dto.CommandResponse, error) {
	if in.ItemID == "" || in.WarehouseID == "" || in.IdempotencyKey == "" {
		return nil, domain.ErrInvalidInput
	}
	if !in.Quantity.GreaterThan(decimal.Zero) || in.UnitCost.LessThan(decimal.Zero) {
		return nil, domain.ErrInvalidInput
	}
	item, err := uc.loadItem(ctx, institutionID, in.ItemID)
	if err != nil {
		return nil, err
	}
	if _, err := uc.loadWarehouse(ctx, institutionID, in.WarehouseID); err != nil {
		return nil, err
	}
	if item.TrackBatches && in.BatchNumber == "" {
		return nil, domain.ErrInvalidInput
	}
	if item.TrackSerials && len(in.SerialNumbers) == 0 {
		return nil, domain.ErrInvalidInput
	}
	if err := validateSerialCount(item, in.Quantity, in.SerialNumbers); err != nil {
		return nil, err
	}

	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: in.ItemID, WarehouseID: in.WarehouseID}
	now := time.Now()
	unitCost := in.UnitCost
	var seq int64

	err = uc.withAggregate(ctx, key, func(r Repos, p *entity.InventoryProjection) error {
		if err := checkIdempotency(ctx, r, key, in.IdempotencyKey); err != nil {
			return err
		}
		draft := entity.EventDraft{
			Type:           entity.EventStockReceived,
			IdempotencyKey: in.IdempotencyKey,
			OccurredAt:     now,
			RecordedBy:     userID,
			Payload: entity.EventPayload{
				Quantity:      in.Quantity,
				UnitCost:      &unitCost,
				ReferenceIDs:  in.ReferenceIDs,
				BatchNumber:   in.BatchNumber,
				ExpiryDate:    in.ExpiryDate,
				SerialNumbers: in.SerialNumbers,
			},
		}
		e, err := appendAndFold(ctx, r, p, key, draft, policyFor(item))
		if err != nil {
			return err
		}
		seq = e.SequenceNumber

		var batchID string
		if item.TrackBatches {
			batchID, err = receiveIntoBatch(ctx, r, key, item, in, unitCost, now)
			if err != nil {
				return err
			}
		}
		if item.TrackSerials {
			if err := createSerials(ctx, r, key, in.SerialNumbers, batchID, now); err != nil {
				return err
			}
		}
		return nil
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

// Adjust registra un ajuste por pérdida, daño o conteo (StockAdjusted).
// Reason es obligatorio; un decremento consume lotes FIFO si aplica.
func (uc *CommandUseCase) Adjust(ctx context.Context, institutionID, userID string, in dto.AdjustStockRequest) (*dto.CommandResponse, error) {
	if in.ItemID == "" || in.WarehouseID == "" || in.IdempotencyKey == "" {
		return nil, domain.ErrInvalidInput
	}
	if in.Reason == "" {
		return nil, domain.ErrMissingReason
	}
	if !in.Quantity.GreaterThan(decimal.Zero) {
		return nil, domain.ErrInvalidInput
	}
	if in.Direction != entity.AdjustmentIncrease && in.Direction != entity.AdjustmentDecrease {
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
		draft := entity.EventDraft{
			Type:           entity.EventStockAdjusted,
			IdempotencyKey: in.IdempotencyKey,
			OccurredAt:     now,
			RecordedBy:     userID,
			Payload: entity.EventPayload{
				Quantity:      in.Quantity,
				UnitCost:      in.UnitCost,
				Direction:     in.Direction,
				Reason:        in.Reason,
				SerialNumbers: in.SerialNumbers,
			},
		}
		e, err := appendAndFold(ctx, r, p, key, draft, policyFor(item))
		if err != nil {
			return err
		}
		seq = e.SequenceNumber

		if in.Direction == entity.AdjustmentDecrease {
			if item.TrackBatches {
				if _, err := consumeBatches(ctx, r, key, item.HasExpiry, in.Quantity); err != nil {
					return err
				}
			}
			if item.TrackSerials {
				if err := transitionSerials(ctx, r, key, in.SerialNumbers, in.Quantity,
					entity.SerialAvailable, entity.SerialDamaged, key.WarehouseID); err != nil {
					return err
				}
			}
		}
		return nil
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

// ── helpers de ejecución ─────────────────────────────────────────────────────

// withAggregate ejecuta fn dentro de una transacción con la fila del agregado
// bloqueada (creada perezosamente si no existe). Reintenta los conflictos
// transitorios con backoff lineal; agotados los intentos devuelve ErrConflict.
// La cancelación del caller solo se honra antes de iniciar la transacción.
func (uc *CommandUseCase) withAggregate(ctx context.Context, key entity.AggregateKey, fn func(r Repos, p *entity.InventoryProjection) error) error {
	var lastErr error
	for attempt := 0; attempt <= uc.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * uc.cfg.RetryBackoff
			uc.log.Warn().
				Str("aggregate", key.String()).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("conflicto de concurrencia, reintentando comando")
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
			if err := r.Projections.EnsureExists(ctx, key); err != nil {
				return err
			}
			p, err := r.Projections.GetForUpdate(ctx, key, uc.cfg.LockTimeout)
			if err != nil {
				return err
			}
			return fn(r, p)
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
		Str("aggregate", key.String()).
		Err(lastErr).
		Msg("comando agotó los reintentos por conflicto")
	return domain.ErrConflict
}

// appendAndFold secuencia el draft, lo aplica a la proyección (fold puro),
// persiste el evento y la proyección con chequeo de versión. Todo dentro de
// la tx del caller.
func appendAndFold(ctx context.Context, r Repos, p *entity.InventoryProjection, key entity.AggregateKey, draft entity.EventDraft, pol domledger.Policy) (*entity.Event, error) {
	e := &entity.Event{
		ID:             uuid.New().String(),
		InstitutionID:  key.InstitutionID,
		AggregateType:  entity.AggregateTypeInventory,
		ItemID:         key.ItemID,
		WarehouseID:    key.WarehouseID,
		Type:           draft.Type,
		SequenceNumber: p.LastEventSequence + 1,
		IdempotencyKey: draft.IdempotencyKey,
		Payload:        draft.Payload,
		OccurredAt:     draft.OccurredAt,
		RecordedBy:     draft.RecordedBy,
	}
	expected := p.Version
	if err := domledger.Apply(p, e, pol); err != nil {
		return nil, err
	}
	if err := r.Events.Append(ctx, e); err != nil {
		return nil, err
	}
	if err := r.Projections.Update(ctx, p, expected); err != nil {
		return nil, err
	}
	return e, nil
}

// checkIdempotency rechaza con ErrDuplicateEvent un reenvío de la misma clave
// sobre el mismo agregado.
func checkIdempotency(ctx context.Context, r Repos, key entity.AggregateKey, idempotencyKey string) error {
	exists, err := r.Events.ExistsIdempotencyKey(ctx, key, idempotencyKey)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrDuplicateEvent
	}
	return nil
}

// evaluateAlerts corre el motor de reorden después del commit. Un fallo acá
// no revierte el comando: se loguea y el próximo comando sobre el agregado
// vuelve a evaluar.
func (uc *CommandUseCase) evaluateAlerts(ctx context.Context, key entity.AggregateKey) {
	if uc.alerts == nil {
		return
	}
	if err := uc.alerts.Evaluate(ctx, key); err != nil {
		uc.log.Error().
			Str("aggregate", key.String()).
			Err(err).
			Msg("evaluación de alertas de reorden falló")
	}
}

// loadItem valida que el item exista, no esté tombstoneado y pertenezca a la
// institución del caller.
func (uc *CommandUseCase) loadItem(ctx context.Context, institutionID, itemID string) (*entity.Item, error) {
	item, err := uc.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.Active() {
		return nil, domain.ErrNotFound
	}
	if item.InstitutionID != institutionID {
		return nil, domain.ErrForbidden
	}
	return item, nil
}

// loadWarehouse valida existencia y pertenencia de la bodega.
func (uc *CommandUseCase) loadWarehouse(ctx context.Context, institutionID, warehouseID string) (*entity.Warehouse, error) {
	wh, err := uc.warehouseRepo.GetByID(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	if wh == nil {
		return nil, domain.ErrNotFound
	}
	if wh.InstitutionID != institutionID {
		return nil, domain.ErrForbidden
	}
	return wh, nil
}

// policyFor captura las banderas del item que condicionan el fold.
func policyFor(item *entity.Item) domledger.Policy {
	return domledger.Policy{
		ValuationMethod:    item.ValuationMethod,
		AllowNegativeStock: item.AllowNegativeStock,
	}
}
