package ledger

import (
	"context"

	"github.com/jhoicas/ledger-inventario/internal/application/dto"
	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
	domledger "github.com/jhoicas/ledger-inventario/internal/domain/ledger"
	"github.com/jhoicas/ledger-inventario/internal/domain/repository"
)

// QueryUseCase resuelve las lecturas del ledger: proyección, historial,
// replay y verificación. Lee sin locks (la proyección es una caché derivada
// que cualquiera puede leer).
type QueryUseCase struct {
	eventRepo       repository.EventRepository
	projectionRepo  repository.ProjectionRepository
	itemRepo        repository.ItemRepository
	batchRepo       repository.BatchRepository
	serialRepo      repository.SerialRepository
	reservationRepo repository.ReservationRepository
}

// NewQueryUseCase construye el caso de uso de lecturas.
func NewQueryUseCase(
	eventRepo repository.EventRepository,
	projectionRepo repository.ProjectionRepository,
	itemRepo repository.ItemRepository,
	batchRepo repository.BatchRepository,
	serialRepo repository.SerialRepository,
	reservationRepo repository.ReservationRepository,
) *QueryUseCase {
	return &QueryUseCase{
		eventRepo:       eventRepo,
		projectionRepo:  projectionRepo,
		itemRepo:        itemRepo,
		batchRepo:       batchRepo,
		serialRepo:      serialRepo,
		reservationRepo: reservationRepo,
	}
}

// GetProjection devuelve el snapshot del (item, bodega). Si todavía no hay
// eventos devuelve la proyección en cero (el par existe lógicamente).
func (uc *QueryUseCase) GetProjection(ctx context.Context, institutionID, itemID, warehouseID string) (*dto.ProjectionDTO, error) {
	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: itemID, WarehouseID: warehouseID}
	p, err := uc.projectionRepo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = entity.NewProjection(key)
	}
	return toProjectionDTO(p), nil
}

// ListByWarehouse lista los snapshots de una bodega.
func (uc *QueryUseCase) ListByWarehouse(ctx context.Context, institutionID, warehouseID string, page dto.PageRequest) ([]dto.ProjectionDTO, error) {
	page.DefaultPage()
	list, err := uc.projectionRepo.ListByWarehouse(ctx, institutionID, warehouseID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ProjectionDTO, 0, len(list))
	for _, p := range list {
		out = append(out, *toProjectionDTO(p))
	}
	return out, nil
}

// History devuelve el historial de eventos del agregado, paginado.
func (uc *QueryUseCase) History(ctx context.Context, institutionID, itemID, warehouseID string, page dto.PageRequest) ([]dto.EventDTO, error) {
	page.DefaultPage()
	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: itemID, WarehouseID: warehouseID}
	events, err := uc.eventRepo.ListByAggregatePaged(ctx, key, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]dto.EventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, toEventDTO(e))
	}
	return out, nil
}

// Replay reconstruye la proyección puramente desde el log hasta asOfSequence
// (0 = todo el log). No toca la proyección viva.
func (uc *QueryUseCase) Replay(ctx context.Context, institutionID, itemID, warehouseID string, asOfSequence int64) (*dto.ProjectionDTO, error) {
	p, err := uc.replay(ctx, institutionID, itemID, warehouseID, asOfSequence)
	if err != nil {
		return nil, err
	}
	return toProjectionDTO(p), nil
}

// Verify compara la proyección viva contra el replay completo del log y
// reporta los campos que derivaron. Es la verificación de no-drift del ledger.
func (uc *QueryUseCase) Verify(ctx context.Context, institutionID, itemID, warehouseID string) (*dto.VerifyResponse, error) {
	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: itemID, WarehouseID: warehouseID}
	live, err := uc.projectionRepo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if live == nil {
		live = entity.NewProjection(key)
	}
	replayed, err := uc.replay(ctx, institutionID, itemID, warehouseID, 0)
	if err != nil {
		return nil, err
	}

	var drift []string
	if !live.QuantityOnHand.Equal(replayed.QuantityOnHand) {
		drift = append(drift, "quantity_on_hand")
	}
	if !live.QuantityAvailable.Equal(replayed.QuantityAvailable) {
		drift = append(drift, "quantity_available")
	}
	if !live.QuantityReserved.Equal(replayed.QuantityReserved) {
		drift = append(drift, "quantity_reserved")
	}
	if !live.AverageCost.Equal(replayed.AverageCost) {
		drift = append(drift, "average_cost")
	}
	if !live.TotalValue.Equal(replayed.TotalValue) {
		drift = append(drift, "total_value")
	}
	if live.LastEventSequence != replayed.LastEventSequence {
		drift = append(drift, "last_event_sequence")
	}
	return &dto.VerifyResponse{
		Consistent: len(drift) == 0,
		Live:       toProjectionDTO(live),
		Replayed:   toProjectionDTO(replayed),
		Drift:      drift,
	}, nil
}

// ListBatches lista los lotes del agregado para trazabilidad.
func (uc *QueryUseCase) ListBatches(ctx context.Context, institutionID, itemID, warehouseID string, page dto.PageRequest) ([]dto.BatchDTO, error) {
	page.DefaultPage()
	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: itemID, WarehouseID: warehouseID}
	batches, err := uc.batchRepo.ListByAggregate(ctx, key, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]dto.BatchDTO, 0, len(batches))
	for _, b := range batches {
		out = append(out, dto.BatchDTO{
			ID:                b.ID,
			BatchNumber:       b.BatchNumber,
			ManufactureDate:   b.ManufactureDate,
			ExpiryDate:        b.ExpiryDate,
			QuantityReceived:  b.QuantityReceived,
			QuantityRemaining: b.QuantityRemaining,
			UnitCost:          b.UnitCost,
			Status:            b.Status,
		})
	}
	return out, nil
}

// ListSerials lista los seriales del agregado, opcionalmente por estado.
func (uc *QueryUseCase) ListSerials(ctx context.Context, institutionID, itemID, warehouseID, status string, page dto.PageRequest) ([]dto.SerialDTO, error) {
	page.DefaultPage()
	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: itemID, WarehouseID: warehouseID}
	serials, err := uc.serialRepo.ListByAggregate(ctx, key, status, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]dto.SerialDTO, 0, len(serials))
	for _, s := range serials {
		out = append(out, dto.SerialDTO{
			ID:           s.ID,
			SerialNumber: s.SerialNumber,
			WarehouseID:  s.WarehouseID,
			BatchID:      s.BatchID,
			Status:       s.Status,
		})
	}
	return out, nil
}

// ListReservations lista las reservas del agregado con su estado, para
// resolver qué órdenes tienen stock apartado.
func (uc *QueryUseCase) ListReservations(ctx context.Context, institutionID, itemID, warehouseID string, page dto.PageRequest) ([]dto.ReservationDTO, error) {
	page.DefaultPage()
	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: itemID, WarehouseID: warehouseID}
	reservations, err := uc.reservationRepo.ListByAggregate(ctx, key, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ReservationDTO, 0, len(reservations))
	for _, r := range reservations {
		out = append(out, dto.ReservationDTO{
			ID:        r.ID,
			OrderRef:  r.OrderRef,
			Quantity:  r.Quantity,
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
			CreatedBy: r.CreatedBy,
		})
	}
	return out, nil
}

func (uc *QueryUseCase) replay(ctx context.Context, institutionID, itemID, warehouseID string, asOfSequence int64) (*entity.InventoryProjection, error) {
	item, err := uc.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	if item.InstitutionID != institutionID {
		return nil, domain.ErrForbidden
	}
	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: itemID, WarehouseID: warehouseID}
	events, err := uc.eventRepo.ListByAggregate(ctx, key, asOfSequence)
	if err != nil {
		return nil, err
	}
	return domledger.Replay(key, events, domledger.Policy{
		ValuationMethod:    item.ValuationMethod,
		AllowNegativeStock: item.AllowNegativeStock,
	}, asOfSequence)
}

func toProjectionDTO(p *entity.InventoryProjection) *dto.ProjectionDTO {
	return &dto.ProjectionDTO{
		ItemID:            p.ItemID,
		WarehouseID:       p.WarehouseID,
		QuantityOnHand:    p.QuantityOnHand,
		QuantityAvailable: p.QuantityAvailable,
		QuantityReserved:  p.QuantityReserved,
		AverageCost:       p.AverageCost,
		TotalValue:        p.TotalValue,
		LastEventSequence: p.LastEventSequence,
		Version:           p.Version,
		UpdatedAt:         p.UpdatedAt,
	}
}

func toEventDTO(e *entity.Event) dto.EventDTO {
	return dto.EventDTO{
		ID:             e.ID,
		Type:           e.Type,
		SequenceNumber: e.SequenceNumber,
		Quantity:       e.Payload.Quantity,
		UnitCost:       e.Payload.UnitCost,
		Direction:      e.Payload.Direction,
		Reason:         e.Payload.Reason,
		OrderRef:       e.Payload.OrderRef,
		TransferID:     e.Payload.TransferID,
		OccurredAt:     e.OccurredAt,
		RecordedBy:     e.RecordedBy,
	}
}
