package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AggregateTypeInventory es el único tipo de agregado del ledger por ahora.
const AggregateTypeInventory = "inventory"

// Tipos de evento del ledger de inventario.
const (
	EventStockReceived       = "StockReceived"
	EventStockAdjusted       = "StockAdjusted"
	EventStockReserved       = "StockReserved"
	EventReservationReleased = "ReservationReleased"
	EventStockShipped        = "StockShipped"
	EventStockTransferredOut = "StockTransferredOut"
	EventStockTransferredIn  = "StockTransferredIn"
)

// Direcciones de un StockAdjusted.
const (
	AdjustmentIncrease = "increase"
	AdjustmentDecrease = "decrease"
)

// AggregateKey identifica el stream de eventos y la proyección de un
// (item, bodega) dentro de una institución. Es la unidad de bloqueo.
type AggregateKey struct {
	InstitutionID string
	ItemID        string
	WarehouseID   string
}

// String devuelve la clave canónica item:bodega. Se usa también para ordenar
// los locks de un traslado de forma determinista.
func (k AggregateKey) String() string {
	return k.ItemID + ":" + k.WarehouseID
}

// EventPayload es la carga estructurada de un evento. Los campos que no
// aplican al tipo de evento quedan en cero (se serializa a JSONB con omitempty).
type EventPayload struct {
	Quantity      decimal.Decimal  `json:"quantity"`
	UnitCost      *decimal.Decimal `json:"unit_cost,omitempty"`
	Direction     string           `json:"direction,omitempty"` // increase | decrease (StockAdjusted)
	Reason        string           `json:"reason,omitempty"`    // obligatorio en StockAdjusted
	OrderRef      string           `json:"order_ref,omitempty"` // reservas y despachos
	TransferID    string           `json:"transfer_id,omitempty"`
	ReferenceIDs  []string         `json:"reference_ids,omitempty"` // GRN, orden de compra, etc.
	BatchNumber   string           `json:"batch_number,omitempty"`
	ExpiryDate    *time.Time       `json:"expiry_date,omitempty"`
	SerialNumbers []string         `json:"serial_numbers,omitempty"`
}

// Event es una entrada inmutable del log. Nunca se actualiza ni se borra;
// SequenceNumber es estrictamente creciente por agregado y sin huecos.
type Event struct {
	ID             string
	InstitutionID  string
	AggregateType  string // siempre "inventory"
	ItemID         string
	WarehouseID    string
	Type           string
	SequenceNumber int64
	IdempotencyKey string // provista por el caller (número de GRN, referencia de ajuste...)
	Payload        EventPayload
	OccurredAt     time.Time
	RecordedBy     string // UserID
}

// Key devuelve la clave del agregado dueño del evento.
func (e *Event) Key() AggregateKey {
	return AggregateKey{InstitutionID: e.InstitutionID, ItemID: e.ItemID, WarehouseID: e.WarehouseID}
}

// EventDraft es un evento aún sin secuencia ni ID, tal como lo arma la capa
// de comandos antes del append transaccional.
type EventDraft struct {
	Type           string
	IdempotencyKey string
	Payload        EventPayload
	OccurredAt     time.Time
	RecordedBy     string
}
