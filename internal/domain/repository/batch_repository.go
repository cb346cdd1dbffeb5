package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// BatchRepository define el puerto del sub-ledger de lotes.
type BatchRepository interface {
	Create(ctx context.Context, b *entity.Batch) error

	GetByNumber(ctx context.Context, key entity.AggregateKey, batchNumber string) (*entity.Batch, error)

	// ListConsumable devuelve los lotes activos con restante > 0 del agregado,
	// ordenados por vencimiento más próximo si byExpiry, si no por orden de
	// recepción. Se llama dentro del lock del agregado.
	ListConsumable(ctx context.Context, key entity.AggregateKey, byExpiry bool) ([]*entity.Batch, error)

	// UpdateRemaining fija la cantidad restante tras un consumo. Un lote en
	// cero no se borra.
	UpdateRemaining(ctx context.Context, id string, remaining decimal.Decimal) error

	// AddQuantity suma qty a recibido y restante (lote destino de un traslado).
	AddQuantity(ctx context.Context, id string, qty decimal.Decimal) error

	// UpdateStatus marca el lote (expired, damaged, recalled).
	UpdateStatus(ctx context.Context, id, status string) error

	ListByAggregate(ctx context.Context, key entity.AggregateKey, limit, offset int) ([]*entity.Batch, error)
}
