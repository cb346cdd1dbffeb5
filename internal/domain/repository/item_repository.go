package repository

import (
	"context"

	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// ItemRepository define el puerto del catálogo de items (colaborador externo
// del núcleo; el ledger solo lee las banderas de política).
type ItemRepository interface {
	Create(ctx context.Context, item *entity.Item) error
	GetByID(ctx context.Context, id string) (*entity.Item, error)
	GetBySKU(ctx context.Context, institutionID, sku string) (*entity.Item, error)
	List(ctx context.Context, institutionID string, limit, offset int) ([]*entity.Item, error)
	Update(ctx context.Context, item *entity.Item) error

	// SoftDelete tombstonea el item; sus eventos nunca se borran.
	SoftDelete(ctx context.Context, id string) error
}
