package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateItemRequest body para POST /api/items.
type CreateItemRequest struct {
	SKU                string          `json:"sku"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	UnitMeasure        string          `json:"unit_measure,omitempty"`
	ValuationMethod    string          `json:"valuation_method,omitempty"` // weighted_average (default) | fifo
	AllowNegativeStock bool            `json:"allow_negative_stock,omitempty"`
	TrackBatches       bool            `json:"track_batches,omitempty"`
	TrackSerials       bool            `json:"track_serials,omitempty"`
	HasExpiry          bool            `json:"has_expiry,omitempty"`
	Price              decimal.Decimal `json:"price,omitempty"`
}

// UpdateItemRequest body para PUT /api/items/:id. Las banderas de valuación y
// trazabilidad no se cambian por acá: cambiarían la semántica del log existente.
type UpdateItemRequest struct {
	Name               string          `json:"name,omitempty"`
	Description        string          `json:"description,omitempty"`
	UnitMeasure        string          `json:"unit_measure,omitempty"`
	AllowNegativeStock *bool           `json:"allow_negative_stock,omitempty"`
	Price              *decimal.Decimal `json:"price,omitempty"`
}

// ItemResponse representación de un item en la API.
type ItemResponse struct {
	ID                 string          `json:"id"`
	SKU                string          `json:"sku"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	UnitMeasure        string          `json:"unit_measure,omitempty"`
	ValuationMethod    string          `json:"valuation_method"`
	AllowNegativeStock bool            `json:"allow_negative_stock"`
	TrackBatches       bool            `json:"track_batches"`
	TrackSerials       bool            `json:"track_serials"`
	HasExpiry          bool            `json:"has_expiry"`
	Price              decimal.Decimal `json:"price"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// CreateWarehouseRequest body para POST /api/warehouses.
type CreateWarehouseRequest struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// WarehouseResponse representación de una bodega en la API.
type WarehouseResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
