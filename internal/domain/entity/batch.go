package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de un lote.
const (
	BatchActive   = "active"
	BatchExpired  = "expired"
	BatchDamaged  = "damaged"
	BatchRecalled = "recalled"
)

// Batch es el sub-ledger de trazabilidad por lote de un item+bodega.
// QuantityRemaining = QuantityReceived menos todo el consumo registrado contra
// el lote. Un lote en cero no se borra, queda agotado implícitamente.
type Batch struct {
	ID                string
	InstitutionID     string
	ItemID            string
	WarehouseID       string
	BatchNumber       string
	ManufactureDate   *time.Time
	ExpiryDate        *time.Time
	QuantityReceived  decimal.Decimal
	QuantityRemaining decimal.Decimal
	UnitCost          decimal.Decimal
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Consumable indica si el lote puede usarse en una salida.
func (b *Batch) Consumable() bool {
	return b.Status == BatchActive && b.QuantityRemaining.GreaterThan(decimal.Zero)
}
