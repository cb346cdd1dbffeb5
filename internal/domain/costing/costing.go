// Package costing implementa las dos estrategias de valuación del ledger
// (servicios de dominio puros y deterministas): promedio ponderado y FIFO por
// capas. El determinismo es lo que hace que replay sea una verificación válida.
package costing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// WeightedAverage calcula el nuevo costo promedio ponderado tras una entrada.
// NuevoCosto = ((StockActual * CostoActual) + (CantEntrada * CostoEntrada)) / (StockActual + CantEntrada)
func WeightedAverage(stockActual, costoActual, cantEntrada, costoEntrada decimal.Decimal) decimal.Decimal {
	sum := stockActual.Add(cantEntrada)
	if sum.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	num := stockActual.Mul(costoActual).Add(cantEntrada.Mul(costoEntrada))
	return num.Div(sum)
}

// PushLayer agrega una capa FIFO al final (la más nueva) por una entrada.
func PushLayer(layers []entity.CostLayer, qty, unitCost decimal.Decimal, receivedAt time.Time, sequence int64) []entity.CostLayer {
	return append(layers, entity.CostLayer{
		Quantity:   qty,
		UnitCost:   unitCost,
		ReceivedAt: receivedAt,
		Sequence:   sequence,
	})
}

// ConsumeLayers consume qty unidades de las capas en orden (la más vieja
// primero), derramando a las siguientes cuando una capa no alcanza. Devuelve
// las capas restantes y el costo de lo consumido (COGS). Consumir más de lo
// que suman todas las capas es ErrInsufficientStock, nunca una capa negativa.
func ConsumeLayers(layers []entity.CostLayer, qty decimal.Decimal) ([]entity.CostLayer, decimal.Decimal, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return layers, decimal.Zero, nil
	}
	remaining := qty
	cogs := decimal.Zero
	out := make([]entity.CostLayer, 0, len(layers))
	for i, layer := range layers {
		if remaining.IsZero() {
			out = append(out, layers[i:]...)
			break
		}
		if layer.Quantity.LessThanOrEqual(remaining) {
			// La capa se agota completa y se derrama a la siguiente
			remaining = remaining.Sub(layer.Quantity)
			cogs = cogs.Add(layer.Quantity.Mul(layer.UnitCost))
			continue
		}
		layer.Quantity = layer.Quantity.Sub(remaining)
		cogs = cogs.Add(remaining.Mul(layer.UnitCost))
		remaining = decimal.Zero
		out = append(out, layer)
	}
	if remaining.GreaterThan(decimal.Zero) {
		return layers, decimal.Zero, domain.ErrInsufficientStock
	}
	return out, cogs, nil
}

// LayersAverage devuelve el costo unitario promedio implícito en las capas
// (valor total / cantidad total). Cero si no hay capas.
func LayersAverage(layers []entity.CostLayer) decimal.Decimal {
	qty := decimal.Zero
	value := decimal.Zero
	for _, l := range layers {
		qty = qty.Add(l.Quantity)
		value = value.Add(l.Quantity.Mul(l.UnitCost))
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return value.Div(qty)
}
