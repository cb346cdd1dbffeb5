// Package ledger contiene el motor de proyección: el fold puro que convierte
// el log de eventos en el snapshot por (item, bodega). Toda mutación de la
// proyección pasa por Apply; replay es el mismo fold desde cero.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/costing"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// Policy son las banderas del item que condicionan el fold. Se capturan al
// momento de aplicar; el fold mismo no consulta repositorios.
type Policy struct {
	ValuationMethod    string // entity.ValuationWeightedAverage | entity.ValuationFIFO
	AllowNegativeStock bool
}

func (p Policy) fifo() bool { return p.ValuationMethod == entity.ValuationFIFO }

// Apply aplica un evento sobre la proyección, mutándola. Rechaza con
// ErrStaleProjection todo evento cuya secuencia no sea exactamente la
// siguiente a LastEventSequence (el caller recarga y reintenta). Cada apply
// exitoso incrementa Version en 1.
func Apply(p *entity.InventoryProjection, e *entity.Event, pol Policy) error {
	if e.SequenceNumber != p.LastEventSequence+1 {
		return domain.ErrStaleProjection
	}

	var err error
	switch e.Type {
	case entity.EventStockReceived:
		err = applyReceive(p, e, pol)
	case entity.EventStockAdjusted:
		err = applyAdjust(p, e, pol)
	case entity.EventStockReserved:
		err = applyReserve(p, e, pol)
	case entity.EventReservationReleased:
		err = applyRelease(p, e)
	case entity.EventStockShipped:
		err = applyShip(p, e, pol)
	case entity.EventStockTransferredOut:
		err = applyTransferOut(p, e, pol)
	case entity.EventStockTransferredIn:
		// Entrada en destino al costo del origen (payload.UnitCost)
		err = applyReceive(p, e, pol)
	default:
		err = domain.ErrInvalidInput
	}
	if err != nil {
		return err
	}

	refreshValue(p, pol)
	p.LastEventSequence = e.SequenceNumber
	p.Version++
	p.UpdatedAt = e.OccurredAt
	return nil
}

// applyReceive: entrada de stock. Suma a on-hand y disponible; promedio
// ponderado recalcula el costo, FIFO empuja una capa nueva.
func applyReceive(p *entity.InventoryProjection, e *entity.Event, pol Policy) error {
	qty := e.Payload.Quantity
	if qty.LessThanOrEqual(decimal.Zero) || e.Payload.UnitCost == nil {
		return domain.ErrInvalidInput
	}
	unitCost := *e.Payload.UnitCost
	if pol.fifo() {
		p.CostLayers = costing.PushLayer(p.CostLayers, qty, unitCost, e.OccurredAt, e.SequenceNumber)
	} else {
		p.AverageCost = costing.WeightedAverage(p.QuantityOnHand, p.AverageCost, qty, unitCost)
	}
	p.QuantityOnHand = p.QuantityOnHand.Add(qty)
	p.QuantityAvailable = p.QuantityAvailable.Add(qty)
	return nil
}

// applyAdjust: ajuste con motivo obligatorio. Incremento entra al costo
// promedio vigente (o al costo indicado); decremento sale de disponible.
func applyAdjust(p *entity.InventoryProjection, e *entity.Event, pol Policy) error {
	if e.Payload.Reason == "" {
		return domain.ErrMissingReason
	}
	qty := e.Payload.Quantity
	if qty.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidInput
	}
	switch e.Payload.Direction {
	case entity.AdjustmentIncrease:
		unitCost := p.AverageCost
		if e.Payload.UnitCost != nil {
			unitCost = *e.Payload.UnitCost
		}
		if pol.fifo() {
			p.CostLayers = costing.PushLayer(p.CostLayers, qty, unitCost, e.OccurredAt, e.SequenceNumber)
		} else {
			p.AverageCost = costing.WeightedAverage(p.QuantityOnHand, p.AverageCost, qty, unitCost)
		}
		p.QuantityOnHand = p.QuantityOnHand.Add(qty)
		p.QuantityAvailable = p.QuantityAvailable.Add(qty)
		return nil
	case entity.AdjustmentDecrease:
		if qty.GreaterThan(p.QuantityAvailable) && !pol.AllowNegativeStock {
			return domain.ErrInsufficientStock
		}
		if pol.fifo() {
			layers, _, err := costing.ConsumeLayers(p.CostLayers, qty)
			if err != nil {
				return err
			}
			p.CostLayers = layers
		}
		p.QuantityOnHand = p.QuantityOnHand.Sub(qty)
		p.QuantityAvailable = p.QuantityAvailable.Sub(qty)
		return nil
	default:
		return domain.ErrInvalidInput
	}
}

// applyReserve: aparta disponible sin tocar on-hand.
func applyReserve(p *entity.InventoryProjection, e *entity.Event, pol Policy) error {
	qty := e.Payload.Quantity
	if qty.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidInput
	}
	if qty.GreaterThan(p.QuantityAvailable) && !pol.AllowNegativeStock {
		return domain.ErrInsufficientAvailableStock
	}
	p.QuantityAvailable = p.QuantityAvailable.Sub(qty)
	p.QuantityReserved = p.QuantityReserved.Add(qty)
	return nil
}

// applyRelease: inverso exacto de la reserva.
func applyRelease(p *entity.InventoryProjection, e *entity.Event) error {
	qty := e.Payload.Quantity
	if qty.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidInput
	}
	if qty.GreaterThan(p.QuantityReserved) {
		return domain.ErrInvalidReservationState
	}
	p.QuantityReserved = p.QuantityReserved.Sub(qty)
	p.QuantityAvailable = p.QuantityAvailable.Add(qty)
	return nil
}

// applyShip: despacho contra una reserva; consume reservado y on-hand,
// reconociendo costo de venta por capas FIFO o al promedio.
func applyShip(p *entity.InventoryProjection, e *entity.Event, pol Policy) error {
	qty := e.Payload.Quantity
	if qty.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidInput
	}
	if qty.GreaterThan(p.QuantityReserved) {
		return domain.ErrInvalidReservationState
	}
	if pol.fifo() {
		layers, _, err := costing.ConsumeLayers(p.CostLayers, qty)
		if err != nil {
			return err
		}
		p.CostLayers = layers
	}
	p.QuantityReserved = p.QuantityReserved.Sub(qty)
	p.QuantityOnHand = p.QuantityOnHand.Sub(qty)
	return nil
}

// applyTransferOut: decremento en el agregado origen de un traslado.
func applyTransferOut(p *entity.InventoryProjection, e *entity.Event, pol Policy) error {
	qty := e.Payload.Quantity
	if qty.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidInput
	}
	if qty.GreaterThan(p.QuantityAvailable) && !pol.AllowNegativeStock {
		return domain.ErrInsufficientAvailableStock
	}
	if pol.fifo() {
		layers, _, err := costing.ConsumeLayers(p.CostLayers, qty)
		if err != nil {
			return err
		}
		p.CostLayers = layers
	}
	p.QuantityOnHand = p.QuantityOnHand.Sub(qty)
	p.QuantityAvailable = p.QuantityAvailable.Sub(qty)
	return nil
}

// refreshValue recalcula AverageCost/TotalValue tras el fold. Bajo FIFO el
// promedio es el implícito en las capas restantes.
func refreshValue(p *entity.InventoryProjection, pol Policy) {
	if pol.fifo() {
		value := decimal.Zero
		for _, l := range p.CostLayers {
			value = value.Add(l.Quantity.Mul(l.UnitCost))
		}
		p.TotalValue = value
		p.AverageCost = costing.LayersAverage(p.CostLayers)
		return
	}
	p.TotalValue = p.QuantityOnHand.Mul(p.AverageCost)
}

// Replay reconstruye la proyección puramente desde el log, en orden de
// secuencia, hasta asOfSequence inclusive (0 = todo el log). Se usa para
// auditoría/reparación y para verificar que la proyección viva no derivó.
func Replay(key entity.AggregateKey, events []*entity.Event, pol Policy, asOfSequence int64) (*entity.InventoryProjection, error) {
	p := entity.NewProjection(key)
	for _, e := range events {
		if asOfSequence > 0 && e.SequenceNumber > asOfSequence {
			break
		}
		if err := Apply(p, e, pol); err != nil {
			return nil, err
		}
	}
	return p, nil
}
