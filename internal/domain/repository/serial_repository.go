package repository

import (
	"context"

	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// SerialRepository define el puerto de trazabilidad por unidad.
// Unicidad por (institución, item, serial).
type SerialRepository interface {
	CreateMany(ctx context.Context, serials []*entity.Serial) error

	// GetBySerialNumber busca el serial dentro de la institución+item.
	GetBySerialNumber(ctx context.Context, institutionID, itemID, serialNumber string) (*entity.Serial, error)

	// UpdateStatus mueve el serial de estado (y de bodega en traslados).
	UpdateStatus(ctx context.Context, id, status, warehouseID string) error

	ListByAggregate(ctx context.Context, key entity.AggregateKey, status string, limit, offset int) ([]*entity.Serial, error)
}
