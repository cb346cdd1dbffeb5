package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ledger-inventario/internal/application/alerts"
	"github.com/jhoicas/ledger-inventario/internal/application/dto"
)

// AlertHandler maneja umbrales de reposición y alertas de stock bajo (protegido).
type AlertHandler struct {
	uc *alerts.AlertUseCase
}

// NewAlertHandler construye el handler.
func NewAlertHandler(uc *alerts.AlertUseCase) *AlertHandler {
	return &AlertHandler{uc: uc}
}

// SetReorderLevel godoc
// @Summary      Fijar el umbral de reposición de un item en una bodega
// @Description  Reevalúa la alerta de inmediato con el nuevo umbral.
// @Tags         alerts
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.SetReorderLevelRequest  true  "item_id, warehouse_id, level"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/inventory/reorder-level [put]
func (h *AlertHandler) SetReorderLevel(c *fiber.Ctx) error {
	institutionID := GetInstitutionID(c)
	userID := GetUserID(c)
	if institutionID == "" || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.SetReorderLevelRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := h.uc.SetReorderLevel(c.Context(), institutionID, userID, in); err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"message": "umbral actualizado"})
}

// ListOpenAlerts godoc
// @Summary      Alertas de stock bajo abiertas
// @Tags         alerts
// @Security     Bearer
// @Produce      json
// @Param        warehouse_id  query  string  false  "Filtrar por bodega (UUID)"
// @Success      200  {array}  dto.LowStockAlertDTO
// @Router       /api/alerts [get]
func (h *AlertHandler) ListOpenAlerts(c *fiber.Ctx) error {
	institutionID := GetInstitutionID(c)
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()
	list, err := h.uc.ListOpenAlerts(c.Context(), institutionID, c.Query("warehouse_id"), page)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"alerts": list, "page": dto.PageResponse{Limit: page.Limit, Offset: page.Offset}})
}

// Acknowledge godoc
// @Summary      Reconocer una alerta (no la cierra)
// @Tags         alerts
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Alerta (UUID)"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/alerts/{id}/acknowledge [post]
func (h *AlertHandler) Acknowledge(c *fiber.Ctx) error {
	institutionID := GetInstitutionID(c)
	userID := GetUserID(c)
	if err := h.uc.Acknowledge(c.Context(), institutionID, c.Params("id"), userID); err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"message": "alerta reconocida"})
}

// Resolve godoc
// @Summary      Resolver (cerrar) una alerta manualmente
// @Tags         alerts
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Alerta (UUID)"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/alerts/{id}/resolve [post]
func (h *AlertHandler) Resolve(c *fiber.Ctx) error {
	institutionID := GetInstitutionID(c)
	if err := h.uc.Resolve(c.Context(), institutionID, c.Params("id")); err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"message": "alerta resuelta"})
}
