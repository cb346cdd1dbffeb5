package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchDTO lote con restante y vencimiento para la API de trazabilidad.
type BatchDTO struct {
	ID                string          `json:"id"`
	BatchNumber       string          `json:"batch_number"`
	ManufactureDate   *time.Time      `json:"manufacture_date,omitempty"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
	QuantityReceived  decimal.Decimal `json:"quantity_received"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	Status            string          `json:"status"`
}

// SerialDTO serial con su estado actual.
type SerialDTO struct {
	ID           string `json:"id"`
	SerialNumber string `json:"serial_number"`
	WarehouseID  string `json:"warehouse_id"`
	BatchID      string `json:"batch_id,omitempty"`
	Status       string `json:"status"`
}

// ReservationDTO reserva con su estado y orden asociada.
type ReservationDTO struct {
	ID        string          `json:"id"`
	OrderRef  string          `json:"order_ref"`
	Quantity  decimal.Decimal `json:"quantity"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	CreatedBy string          `json:"created_by,omitempty"`
}

// SetReorderLevelRequest body para PUT /api/inventory/reorder-level.
type SetReorderLevelRequest struct {
	ItemID      string          `json:"item_id"`
	WarehouseID string          `json:"warehouse_id"`
	Level       decimal.Decimal `json:"level"`
}

// LowStockAlertDTO alerta de stock bajo.
type LowStockAlertDTO struct {
	ID                string          `json:"id"`
	ItemID            string          `json:"item_id"`
	WarehouseID       string          `json:"warehouse_id"`
	ReorderLevel      decimal.Decimal `json:"reorder_level"`
	QuantityAvailable decimal.Decimal `json:"quantity_available"`
	TriggeredAt       time.Time       `json:"triggered_at"`
	AcknowledgedAt    *time.Time      `json:"acknowledged_at,omitempty"`
	AcknowledgedBy    string          `json:"acknowledged_by,omitempty"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
}
