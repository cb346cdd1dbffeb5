package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReorderLevel es el umbral configurado de reposición por (item, bodega).
type ReorderLevel struct {
	InstitutionID string
	ItemID        string
	WarehouseID   string
	Level         decimal.Decimal
	UpdatedAt     time.Time
	UpdatedBy     string
}

// LowStockAlert es la señal derivada: se crea cuando QuantityAvailable cruza
// por debajo del umbral y se resuelve cuando vuelve a alcanzarlo. A lo sumo
// una alerta abierta (ResolvedAt == nil) por (item, bodega).
type LowStockAlert struct {
	ID                string
	InstitutionID     string
	ItemID            string
	WarehouseID       string
	ReorderLevel      decimal.Decimal // umbral vigente al momento de disparar
	QuantityAvailable decimal.Decimal // disponible al momento de disparar
	TriggeredAt       time.Time
	AcknowledgedAt    *time.Time // reconocer no cierra la alerta
	AcknowledgedBy    string
	ResolvedAt        *time.Time
}

// Open indica si la alerta sigue abierta.
func (a *LowStockAlert) Open() bool {
	return a.ResolvedAt == nil
}
