// Package alerts implementa el motor de reorden: compara la proyección contra
// el umbral configurado y mantiene a lo sumo una alerta abierta por
// (item, bodega). Corre después del commit de cada comando y solo lee la
// proyección.
package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/ledger-inventario/internal/application/dto"
	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
	"github.com/jhoicas/ledger-inventario/internal/domain/repository"
	"github.com/jhoicas/ledger-inventario/pkg/logger"
)

// AlertUseCase evalúa umbrales y administra el ciclo de vida de las alertas.
type AlertUseCase struct {
	reorderRepo    repository.ReorderRepository
	projectionRepo repository.ProjectionRepository
	log            *logger.Logger
}

// NewAlertUseCase construye el motor de reorden.
func NewAlertUseCase(reorderRepo repository.ReorderRepository, projectionRepo repository.ProjectionRepository, log *logger.Logger) *AlertUseCase {
	return &AlertUseCase{reorderRepo: reorderRepo, projectionRepo: projectionRepo, log: log}
}

// Evaluate aplica las reglas de transición tras una actualización de
// proyección: sin alerta → alerta al cruzar por debajo del umbral; la alerta
// abierta se auto-resuelve cuando el disponible vuelve a alcanzarlo.
// Reconocerla no la cierra.
func (uc *AlertUseCase) Evaluate(ctx context.Context, key entity.AggregateKey) error {
	level, err := uc.reorderRepo.GetLevel(ctx, key)
	if err != nil {
		return err
	}
	open, err := uc.reorderRepo.GetOpenAlert(ctx, key)
	if err != nil {
		return err
	}
	if level == nil {
		// Sin umbral configurado no puede haber alerta vigente
		if open != nil {
			return uc.reorderRepo.ResolveAlert(ctx, open.ID, time.Now())
		}
		return nil
	}

	p, err := uc.projectionRepo.Get(ctx, key)
	if err != nil {
		return err
	}
	if p == nil {
		p = entity.NewProjection(key)
	}

	below := p.QuantityAvailable.LessThan(level.Level)
	switch {
	case below && open == nil:
		alert := &entity.LowStockAlert{
			ID:                uuid.New().String(),
			InstitutionID:     key.InstitutionID,
			ItemID:            key.ItemID,
			WarehouseID:       key.WarehouseID,
			ReorderLevel:      level.Level,
			QuantityAvailable: p.QuantityAvailable,
			TriggeredAt:       time.Now(),
		}
		if err := uc.reorderRepo.CreateAlert(ctx, alert); err != nil {
			return err
		}
		uc.log.Warn().
			Str("aggregate", key.String()).
			Str("available", p.QuantityAvailable.String()).
			Str("reorder_level", level.Level.String()).
			Msg("alerta de stock bajo creada")
	case !below && open != nil:
		if err := uc.reorderRepo.ResolveAlert(ctx, open.ID, time.Now()); err != nil {
			return err
		}
		uc.log.Info().
			Str("aggregate", key.String()).
			Str("available", p.QuantityAvailable.String()).
			Msg("alerta de stock bajo auto-resuelta")
	}
	// Abierta y sigue abajo: la alerta permanece, no se duplica
	return nil
}

// SetReorderLevel configura el umbral y reevalúa de inmediato.
func (uc *AlertUseCase) SetReorderLevel(ctx context.Context, institutionID, userID string, in dto.SetReorderLevelRequest) error {
	if in.ItemID == "" || in.WarehouseID == "" || in.Level.IsNegative() {
		return domain.ErrInvalidInput
	}
	key := entity.AggregateKey{InstitutionID: institutionID, ItemID: in.ItemID, WarehouseID: in.WarehouseID}
	if err := uc.reorderRepo.UpsertLevel(ctx, &entity.ReorderLevel{
		InstitutionID: institutionID,
		ItemID:        in.ItemID,
		WarehouseID:   in.WarehouseID,
		Level:         in.Level,
		UpdatedAt:     time.Now(),
		UpdatedBy:     userID,
	}); err != nil {
		return err
	}
	return uc.Evaluate(ctx, key)
}

// ListOpenAlerts lista las alertas abiertas de la institución, opcionalmente
// filtradas por bodega.
func (uc *AlertUseCase) ListOpenAlerts(ctx context.Context, institutionID, warehouseID string, page dto.PageRequest) ([]dto.LowStockAlertDTO, error) {
	page.DefaultPage()
	alerts, err := uc.reorderRepo.ListOpenAlerts(ctx, institutionID, warehouseID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]dto.LowStockAlertDTO, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertDTO(a))
	}
	return out, nil
}

// Acknowledge registra quién vio la alerta. No la cierra: solo volver sobre
// el umbral (o un resolve explícito) la cierra.
func (uc *AlertUseCase) Acknowledge(ctx context.Context, institutionID, alertID, userID string) error {
	alert, err := uc.reorderRepo.GetAlert(ctx, institutionID, alertID)
	if err != nil {
		return err
	}
	if alert == nil {
		return domain.ErrNotFound
	}
	return uc.reorderRepo.AcknowledgeAlert(ctx, alertID, userID, time.Now())
}

// Resolve cierra la alerta explícitamente.
func (uc *AlertUseCase) Resolve(ctx context.Context, institutionID, alertID string) error {
	alert, err := uc.reorderRepo.GetAlert(ctx, institutionID, alertID)
	if err != nil {
		return err
	}
	if alert == nil {
		return domain.ErrNotFound
	}
	if !alert.Open() {
		return domain.ErrInvalidInput
	}
	return uc.reorderRepo.ResolveAlert(ctx, alertID, time.Now())
}

func toAlertDTO(a *entity.LowStockAlert) dto.LowStockAlertDTO {
	return dto.LowStockAlertDTO{
		ID:                a.ID,
		ItemID:            a.ItemID,
		WarehouseID:       a.WarehouseID,
		ReorderLevel:      a.ReorderLevel,
		QuantityAvailable: a.QuantityAvailable,
		TriggeredAt:       a.TriggeredAt,
		AcknowledgedAt:    a.AcknowledgedAt,
		AcknowledgedBy:    a.AcknowledgedBy,
		ResolvedAt:        a.ResolvedAt,
	}
}
