package repository

import (
	"context"
	"time"

	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// ProjectionRepository define el puerto del snapshot por (item, bodega).
// Solo el motor de proyección escribe, dentro del lock del agregado; las
// lecturas no bloquean. La fila nunca se borra (se deja en cero).
type ProjectionRepository interface {
	// Get lee la proyección sin bloquear. Devuelve nil si aún no existe.
	Get(ctx context.Context, key entity.AggregateKey) (*entity.InventoryProjection, error)

	// EnsureExists crea perezosamente la fila en cero para el agregado si no
	// existe (ON CONFLICT DO NOTHING), para que GetForUpdate tenga qué bloquear.
	EnsureExists(ctx context.Context, key entity.AggregateKey) error

	// GetForUpdate bloquea la fila del agregado (SELECT ... FOR UPDATE) con
	// espera acotada; superado lockTimeout devuelve ErrAggregateLockTimeout.
	GetForUpdate(ctx context.Context, key entity.AggregateKey, lockTimeout time.Duration) (*entity.InventoryProjection, error)

	// Update persiste la proyección verificando el contador optimista:
	// cero filas afectadas con expectedVersion distinto es ErrStaleProjection.
	Update(ctx context.Context, p *entity.InventoryProjection, expectedVersion int64) error

	// ListByWarehouse lista las proyecciones de una bodega (lectura sin lock).
	ListByWarehouse(ctx context.Context, institutionID, warehouseID string, limit, offset int) ([]*entity.InventoryProjection, error)
}
