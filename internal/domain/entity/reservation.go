package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de una reserva. Transiciones válidas:
// Reserved -> Shipped (despacho) | Released (cancelación). Sin retorno.
const (
	ReservationReserved = "reserved"
	ReservationShipped  = "shipped"
	ReservationReleased = "released"
)

// Reservation aparta stock disponible contra una línea de orden de venta.
// Nace con StockReserved y se cierra con StockShipped o ReservationReleased.
// Derivada de eventos; la tabla existe para resolver búsquedas por OrderRef.
type Reservation struct {
	ID            string
	InstitutionID string
	ItemID        string
	WarehouseID   string
	OrderRef      string
	Quantity      decimal.Decimal
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CreatedBy     string
}
