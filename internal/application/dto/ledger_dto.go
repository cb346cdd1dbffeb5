package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiveStockRequest body para POST /api/inventory/receive.
// IdempotencyKey suele ser el número de GRN; un reenvío con la misma clave
// no duplica el evento.
type ReceiveStockRequest struct {
	ItemID         string           `json:"item_id"`
	WarehouseID    string           `json:"warehouse_id"`
	Quantity       decimal.Decimal  `json:"quantity"`
	UnitCost       decimal.Decimal  `json:"unit_cost"`
	IdempotencyKey string           `json:"idempotency_key"`
	ReferenceIDs   []string         `json:"reference_ids,omitempty"`
	BatchNumber    string           `json:"batch_number,omitempty"`
	ExpiryDate     *time.Time       `json:"expiry_date,omitempty"`
	ManufactureDate *time.Time      `json:"manufacture_date,omitempty"`
	SerialNumbers  []string         `json:"serial_numbers,omitempty"`
}

// AdjustStockRequest body para POST /api/inventory/adjust. Reason es
// obligatorio y no vacío.
type AdjustStockRequest struct {
	ItemID         string          `json:"item_id"`
	WarehouseID    string          `json:"warehouse_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	Direction      string          `json:"direction"` // increase | decrease
	Reason         string          `json:"reason"`
	UnitCost       *decimal.Decimal `json:"unit_cost,omitempty"` // solo increase
	IdempotencyKey string          `json:"idempotency_key"`
	SerialNumbers  []string        `json:"serial_numbers,omitempty"`
}

// ReserveStockRequest body para POST /api/inventory/reserve.
type ReserveStockRequest struct {
	ItemID         string          `json:"item_id"`
	WarehouseID    string          `json:"warehouse_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	OrderRef       string          `json:"order_ref"`
	IdempotencyKey string          `json:"idempotency_key"`
	SerialNumbers  []string        `json:"serial_numbers,omitempty"`
}

// ReleaseReservationRequest body para POST /api/inventory/release.
type ReleaseReservationRequest struct {
	ItemID         string          `json:"item_id"`
	WarehouseID    string          `json:"warehouse_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	OrderRef       string          `json:"order_ref"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// ShipStockRequest body para POST /api/inventory/ship.
type ShipStockRequest struct {
	ItemID         string          `json:"item_id"`
	WarehouseID    string          `json:"warehouse_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	OrderRef       string          `json:"order_ref"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// TransferStockRequest body para POST /api/inventory/transfer.
type TransferStockRequest struct {
	ItemID          string          `json:"item_id"`
	FromWarehouseID string          `json:"from_warehouse_id"`
	ToWarehouseID   string          `json:"to_warehouse_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	IdempotencyKey  string          `json:"idempotency_key"`
}

// MarkBatchRequest body para POST /api/inventory/batches/status: retira un
// lote de circulación (expired, damaged, recalled). El restante del lote se
// descarga del stock como un ajuste con motivo.
type MarkBatchRequest struct {
	ItemID         string `json:"item_id"`
	WarehouseID    string `json:"warehouse_id"`
	BatchNumber    string `json:"batch_number"`
	Status         string `json:"status"` // expired | damaged | recalled
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

// CommandResponse respuesta de los comandos del ledger.
type CommandResponse struct {
	Duplicate      bool   `json:"duplicate,omitempty"` // idempotencia: ya aplicado, sin efecto
	TransferID     string `json:"transfer_id,omitempty"`
	SequenceNumber int64  `json:"sequence_number,omitempty"`
}

// ProjectionDTO snapshot de stock de un (item, bodega).
type ProjectionDTO struct {
	ItemID            string          `json:"item_id"`
	WarehouseID       string          `json:"warehouse_id"`
	QuantityOnHand    decimal.Decimal `json:"quantity_on_hand"`
	QuantityAvailable decimal.Decimal `json:"quantity_available"`
	QuantityReserved  decimal.Decimal `json:"quantity_reserved"`
	AverageCost       decimal.Decimal `json:"average_cost"`
	TotalValue        decimal.Decimal `json:"total_value"`
	LastEventSequence int64           `json:"last_event_sequence"`
	Version           int64           `json:"version"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// EventDTO entrada del historial para la API.
type EventDTO struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	SequenceNumber int64           `json:"sequence_number"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       *decimal.Decimal `json:"unit_cost,omitempty"`
	Direction      string          `json:"direction,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	OrderRef       string          `json:"order_ref,omitempty"`
	TransferID     string          `json:"transfer_id,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
	RecordedBy     string          `json:"recorded_by,omitempty"`
}

// VerifyResponse resultado de comparar la proyección viva contra el replay.
type VerifyResponse struct {
	Consistent bool           `json:"consistent"`
	Live       *ProjectionDTO `json:"live"`
	Replayed   *ProjectionDTO `json:"replayed"`
	Drift      []string       `json:"drift,omitempty"` // campos que difieren
}
