package repository

import (
	"context"
	"time"

	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// ReorderRepository define el puerto de umbrales de reposición y alertas.
// La DB garantiza a lo sumo una alerta abierta por (item, bodega) con un
// índice único parcial sobre resolved_at IS NULL.
type ReorderRepository interface {
	GetLevel(ctx context.Context, key entity.AggregateKey) (*entity.ReorderLevel, error)
	UpsertLevel(ctx context.Context, level *entity.ReorderLevel) error

	GetOpenAlert(ctx context.Context, key entity.AggregateKey) (*entity.LowStockAlert, error)
	GetAlert(ctx context.Context, institutionID, alertID string) (*entity.LowStockAlert, error)
	CreateAlert(ctx context.Context, alert *entity.LowStockAlert) error
	AcknowledgeAlert(ctx context.Context, id, userID string, at time.Time) error
	ResolveAlert(ctx context.Context, id string, at time.Time) error

	// ListOpenAlerts lista alertas abiertas de la institución; warehouseID
	// vacío no filtra por bodega.
	ListOpenAlerts(ctx context.Context, institutionID, warehouseID string, limit, offset int) ([]*entity.LowStockAlert, error)
}
