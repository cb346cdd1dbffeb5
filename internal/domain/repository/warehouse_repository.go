package repository

import (
	"context"

	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// WarehouseRepository define el puerto de bodegas (colaborador externo).
type WarehouseRepository interface {
	Create(ctx context.Context, w *entity.Warehouse) error
	GetByID(ctx context.Context, id string) (*entity.Warehouse, error)
	List(ctx context.Context, institutionID string, limit, offset int) ([]*entity.Warehouse, error)
}
