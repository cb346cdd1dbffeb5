package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostLayer es una capa de costo FIFO: cantidad restante recibida a un costo
// unitario. Las capas viven embebidas en la proyección (columna JSONB) para
// que se actualicen atómicamente con las cantidades y sean reproducibles por replay.
type CostLayer struct {
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	ReceivedAt time.Time       `json:"received_at"`
	Sequence   int64           `json:"sequence"` // secuencia del evento que creó la capa
}

// InventoryProjection es el snapshot derivado del log para un (item, bodega).
// Solo el motor de proyección la muta, dentro del lock del agregado.
// Invariantes: QuantityOnHand = QuantityAvailable + QuantityReserved;
// TotalValue = QuantityOnHand * AverageCost bajo promedio ponderado.
type InventoryProjection struct {
	InstitutionID     string
	ItemID            string
	WarehouseID       string
	QuantityOnHand    decimal.Decimal
	QuantityAvailable decimal.Decimal
	QuantityReserved  decimal.Decimal
	AverageCost       decimal.Decimal
	TotalValue        decimal.Decimal
	CostLayers        []CostLayer // solo con valuación FIFO; nil bajo promedio ponderado
	LastEventSequence int64
	Version           int64 // lock optimista; +1 en cada apply
	UpdatedAt         time.Time
}

// Key devuelve la clave del agregado de la proyección.
func (p *InventoryProjection) Key() AggregateKey {
	return AggregateKey{InstitutionID: p.InstitutionID, ItemID: p.ItemID, WarehouseID: p.WarehouseID}
}

// NewProjection crea la proyección en cero para un agregado (creación perezosa
// en el primer evento del par item+bodega).
func NewProjection(key AggregateKey) *InventoryProjection {
	return &InventoryProjection{
		InstitutionID:     key.InstitutionID,
		ItemID:            key.ItemID,
		WarehouseID:       key.WarehouseID,
		QuantityOnHand:    decimal.Zero,
		QuantityAvailable: decimal.Zero,
		QuantityReserved:  decimal.Zero,
		AverageCost:       decimal.Zero,
		TotalValue:        decimal.Zero,
	}
}

// LayersTotal suma la cantidad restante en todas las capas FIFO.
func (p *InventoryProjection) LayersTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.CostLayers {
		total = total.Add(l.Quantity)
	}
	return total
}
