package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/jhoicas/ledger-inventario/internal/application/dto"
	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
	"github.com/jhoicas/ledger-inventario/internal/domain/repository"
)

// ItemUseCase CRUD del catálogo de items (colaborador externo del ledger).
// El método de valuación y las banderas de trazabilidad se fijan al crear:
// cambiarlas después alteraría la semántica del log ya escrito.
type ItemUseCase struct {
	itemRepo repository.ItemRepository
}

// NewItemUseCase construye el caso de uso.
func NewItemUseCase(itemRepo repository.ItemRepository) *ItemUseCase {
	return &ItemUseCase{itemRepo: itemRepo}
}

// NormalizeSKU normaliza el SKU tipeado por el usuario: NFKC, sin espacios en
// los bordes y en mayúsculas, para que la unicidad por institución no dependa
// de la forma Unicode de entrada.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(sku)))
}

// Create registra un item. SKU único por institución (normalizado).
func (uc *ItemUseCase) Create(ctx context.Context, institutionID string, in dto.CreateItemRequest) (*dto.ItemResponse, error) {
	sku := NormalizeSKU(in.SKU)
	if sku == "" || in.Name == "" {
		return nil, domain.ErrInvalidInput
	}
	method := in.ValuationMethod
	if method == "" {
		method = entity.ValuationWeightedAverage
	}
	if method != entity.ValuationWeightedAverage && method != entity.ValuationFIFO {
		return nil, domain.ErrInvalidInput
	}
	if in.HasExpiry && !in.TrackBatches {
		return nil, domain.ErrInvalidInput
	}
	existing, err := uc.itemRepo.GetBySKU(ctx, institutionID, sku)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicate
	}
	now := time.Now()
	item := &entity.Item{
		ID:                 uuid.New().String(),
		InstitutionID:      institutionID,
		SKU:                sku,
		Name:               in.Name,
		Description:        in.Description,
		UnitMeasure:        in.UnitMeasure,
		ValuationMethod:    method,
		AllowNegativeStock: in.AllowNegativeStock,
		TrackBatches:       in.TrackBatches,
		TrackSerials:       in.TrackSerials,
		HasExpiry:          in.HasExpiry,
		Price:              in.Price,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := uc.itemRepo.Create(ctx, item); err != nil {
		return nil, err
	}
	return toItemResponse(item), nil
}

// GetByID devuelve un item de la institución.
func (uc *ItemUseCase) GetByID(ctx context.Context, institutionID, id string) (*dto.ItemResponse, error) {
	item, err := uc.itemRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.Active() {
		return nil, domain.ErrNotFound
	}
	if item.InstitutionID != institutionID {
		return nil, domain.ErrForbidden
	}
	return toItemResponse(item), nil
}

// List lista los items activos de la institución.
func (uc *ItemUseCase) List(ctx context.Context, institutionID string, page dto.PageRequest) ([]dto.ItemResponse, error) {
	page.DefaultPage()
	items, err := uc.itemRepo.List(ctx, institutionID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, *toItemResponse(it))
	}
	return out, nil
}

// Update modifica los campos editables del item.
func (uc *ItemUseCase) Update(ctx context.Context, institutionID, id string, in dto.UpdateItemRequest) (*dto.ItemResponse, error) {
	item, err := uc.itemRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.Active() {
		return nil, domain.ErrNotFound
	}
	if item.InstitutionID != institutionID {
		return nil, domain.ErrForbidden
	}
	if in.Name != "" {
		item.Name = in.Name
	}
	if in.Description != "" {
		item.Description = in.Description
	}
	if in.UnitMeasure != "" {
		item.UnitMeasure = in.UnitMeasure
	}
	if in.AllowNegativeStock != nil {
		item.AllowNegativeStock = *in.AllowNegativeStock
	}
	if in.Price != nil {
		item.Price = *in.Price
	}
	item.UpdatedAt = time.Now()
	if err := uc.itemRepo.Update(ctx, item); err != nil {
		return nil, err
	}
	return toItemResponse(item), nil
}

// Delete tombstonea el item. El log de eventos del item nunca se borra.
func (uc *ItemUseCase) Delete(ctx context.Context, institutionID, id string) error {
	item, err := uc.itemRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if item == nil || !item.Active() {
		return domain.ErrNotFound
	}
	if item.InstitutionID != institutionID {
		return domain.ErrForbidden
	}
	return uc.itemRepo.SoftDelete(ctx, id)
}

func toItemResponse(i *entity.Item) *dto.ItemResponse {
	return &dto.ItemResponse{
		ID:                 i.ID,
		SKU:                i.SKU,
		Name:               i.Name,
		Description:        i.Description,
		UnitMeasure:        i.UnitMeasure,
		ValuationMethod:    i.ValuationMethod,
		AllowNegativeStock: i.AllowNegativeStock,
		TrackBatches:       i.TrackBatches,
		TrackSerials:       i.TrackSerials,
		HasExpiry:          i.HasExpiry,
		Price:              i.Price,
		CreatedAt:          i.CreatedAt,
		UpdatedAt:          i.UpdatedAt,
	}
}
