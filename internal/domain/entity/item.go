package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Métodos de valuación de inventario por item.
const (
	ValuationWeightedAverage = "weighted_average"
	ValuationFIFO            = "fifo"
)

// Item representa un SKU del catálogo. El ledger solo lee sus banderas de
// política (valuación, stock negativo, trazabilidad); el CRUD es colaborador
// externo del núcleo.
type Item struct {
	ID                 string
	InstitutionID      string
	SKU                string // normalizado y único por institución
	Name               string
	Description        string
	UnitMeasure        string
	ValuationMethod    string // weighted_average | fifo
	AllowNegativeStock bool
	TrackBatches       bool
	TrackSerials       bool
	HasExpiry          bool // con lotes: consumir por vencimiento más próximo
	Price              decimal.Decimal
	DeletedAt          *time.Time // tombstone: el log nunca se borra con el item
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Active indica si el item no está tombstoneado.
func (i *Item) Active() bool {
	return i.DeletedAt == nil
}
