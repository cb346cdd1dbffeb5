package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/ledger-inventario/internal/application/dto"
	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
	"github.com/jhoicas/ledger-inventario/internal/domain/repository"
)

// WarehouseUseCase CRUD de bodegas (colaborador externo del ledger).
type WarehouseUseCase struct {
	warehouseRepo repository.WarehouseRepository
}

// NewWarehouseUseCase construye el caso de uso.
func NewWarehouseUseCase(warehouseRepo repository.WarehouseRepository) *WarehouseUseCase {
	return &WarehouseUseCase{warehouseRepo: warehouseRepo}
}

// Create registra una bodega.
func (uc *WarehouseUseCase) Create(ctx context.Context, institutionID string, in dto.CreateWarehouseRequest) (*dto.WarehouseResponse, error) {
	if in.Name == "" {
		return nil, domain.ErrInvalidInput
	}
	now := time.Now()
	w := &entity.Warehouse{
		ID:            uuid.New().String(),
		InstitutionID: institutionID,
		Name:          in.Name,
		Address:       in.Address,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.warehouseRepo.Create(ctx, w); err != nil {
		return nil, err
	}
	return toWarehouseResponse(w), nil
}

// GetByID devuelve una bodega de la institución.
func (uc *WarehouseUseCase) GetByID(ctx context.Context, institutionID, id string) (*dto.WarehouseResponse, error) {
	w, err := uc.warehouseRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, domain.ErrNotFound
	}
	if w.InstitutionID != institutionID {
		return nil, domain.ErrForbidden
	}
	return toWarehouseResponse(w), nil
}

// List lista las bodegas de la institución.
func (uc *WarehouseUseCase) List(ctx context.Context, institutionID string, page dto.PageRequest) ([]dto.WarehouseResponse, error) {
	page.DefaultPage()
	list, err := uc.warehouseRepo.List(ctx, institutionID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]dto.WarehouseResponse, 0, len(list))
	for _, w := range list {
		out = append(out, *toWarehouseResponse(w))
	}
	return out, nil
}

func toWarehouseResponse(w *entity.Warehouse) *dto.WarehouseResponse {
	return &dto.WarehouseResponse{
		ID:        w.ID,
		Name:      w.Name,
		Address:   w.Address,
		CreatedAt: w.CreatedAt,
	}
}
