package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ledger-inventario/internal/application/dto"
	"github.com/jhoicas/ledger-inventario/internal/application/ledger"
)

// LedgerHandler maneja los comandos y consultas del ledger de inventario (protegido).
type LedgerHandler struct {
	commands *ledger.CommandUseCase
	queries  *ledger.QueryUseCase
}

// NewLedgerHandler construye el handler.
func NewLedgerHandler(commands *ledger.CommandUseCase, queries *ledger.QueryUseCase) *LedgerHandler {
	return &LedgerHandler{commands: commands, queries: queries}
}

// runCommand parsea el body, ejecuta el comando y responde 201 (o 200 si fue
// un duplicado idempotente).
func runCommand[T any](c *fiber.Ctx, exec func(institutionID, userID string, in T) (*dto.CommandResponse, error)) error {
	institutionID := GetInstitutionID(c)
	userID := GetUserID(c)
	if institutionID == "" || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in T
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	out, err := exec(institutionID, userID, in)
	if err != nil {
		return domainError(c, err)
	}
	if out.Duplicate {
		return c.Status(fiber.StatusOK).JSON(out)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// Receive godoc
// @Summary      Recibir stock (entrada con costo)
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ReceiveStockRequest  true  "item_id, warehouse_id, quantity, unit_cost, idempotency_key"
// @Success      201   {object}  dto.CommandResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/receive [post]
func (h *LedgerHandler) Receive(c *fiber.Ctx) error {
	return runCommand(c, func(institutionID, userID string, in dto.ReceiveStockRequest) (*dto.CommandResponse, error) {
		return h.commands.Receive(c.Context(), institutionID, userID, in)
	})
}

// Adjust godoc
// @Summary      Ajustar stock (requiere razón)
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.AdjustStockRequest  true  "item_id, warehouse_id, quantity, direction, reason, idempotency_key"
// @Success      201   {object}  dto.CommandResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/adjust [post]
func (h *LedgerHandler) Adjust(c *fiber.Ctx) error {
	return runCommand(c, func(institutionID, userID string, in dto.AdjustStockRequest) (*dto.CommandResponse, error) {
		return h.commands.Adjust(c.Context(), institutionID, userID, in)
	})
}

// Reserve godoc
// @Summary      Reservar stock disponible contra una orden
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ReserveStockRequest  true  "item_id, warehouse_id, quantity, order_ref, idempotency_key"
// @Success      201   {object}  dto.CommandResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/reserve [post]
func (h *LedgerHandler) Reserve(c *fiber.Ctx) error {
	return runCommand(c, func(institutionID, userID string, in dto.ReserveStockRequest) (*dto.CommandResponse, error) {
		return h.commands.Reserve(c.Context(), institutionID, userID, in)
	})
}

// Release godoc
// @Summary      Liberar una reserva (total o parcial)
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ReleaseReservationRequest  true  "item_id, warehouse_id, quantity, order_ref, idempotency_key"
// @Success      201   {object}  dto.CommandResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/release [post]
func (h *LedgerHandler) Release(c *fiber.Ctx) error {
	return runCommand(c, func(institutionID, userID string, in dto.ReleaseReservationRequest) (*dto.CommandResponse, error) {
		return h.commands.Release(c.Context(), institutionID, userID, in)
	})
}

// Ship godoc
// @Summary      Despachar stock reservado
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ShipStockRequest  true  "item_id, warehouse_id, quantity, order_ref, idempotency_key"
// @Success      201   {object}  dto.CommandResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/ship [post]
func (h *LedgerHandler) Ship(c *fiber.Ctx) error {
	return runCommand(c, func(institutionID, userID string, in dto.ShipStockRequest) (*dto.CommandResponse, error) {
		return h.commands.Ship(c.Context(), institutionID, userID, in)
	})
}

// Transfer godoc
// @Summary      Trasladar stock entre bodegas (atómico)
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.TransferStockRequest  true  "item_id, from_warehouse_id, to_warehouse_id, quantity, idempotency_key"
// @Success      201   {object}  dto.CommandResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/transfer [post]
func (h *LedgerHandler) Transfer(c *fiber.Ctx) error {
	return runCommand(c, func(institutionID, userID string, in dto.TransferStockRequest) (*dto.CommandResponse, error) {
		return h.commands.Transfer(c.Context(), institutionID, userID, in)
	})
}

// aggregateParams lee item_id y warehouse_id de la query string.
func aggregateParams(c *fiber.Ctx) (institutionID, itemID, warehouseID string, ok bool) {
	institutionID = GetInstitutionID(c)
	itemID = c.Query("item_id")
	warehouseID = c.Query("warehouse_id")
	ok = institutionID != "" && itemID != "" && warehouseID != ""
	return
}

// GetStock godoc
// @Summary      Stock actual de un item en una bodega
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        item_id       query  string  true  "Item (UUID)"
// @Param        warehouse_id  query  string  true  "Bodega (UUID)"
// @Success      200  {object}  dto.ProjectionDTO
// @Router       /api/inventory/stock [get]
func (h *LedgerHandler) GetStock(c *fiber.Ctx) error {
	institutionID, itemID, warehouseID, ok := aggregateParams(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "item_id y warehouse_id son requeridos"})
	}
	p, err := h.queries.GetProjection(c.Context(), institutionID, itemID, warehouseID)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(p)
}

// ListWarehouseStock godoc
// @Summary      Stock de todos los items de una bodega
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        warehouse_id  path   string  true   "Bodega (UUID)"
// @Param        limit         query  int     false  "Tamaño de página"
// @Param        offset        query  int     false  "Desplazamiento"
// @Success      200  {array}  dto.ProjectionDTO
// @Router       /api/inventory/warehouses/{warehouse_id}/stock [get]
func (h *LedgerHandler) ListWarehouseStock(c *fiber.Ctx) error {
	institutionID := GetInstitutionID(c)
	warehouseID := c.Params("warehouse_id")
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()
	list, err := h.queries.ListByWarehouse(c.Context(), institutionID, warehouseID, page)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"stock": list, "page": dto.PageResponse{Limit: page.Limit, Offset: page.Offset}})
}

// History godoc
// @Summary      Historial de eventos de un item en una bodega
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        item_id       query  string  true  "Item (UUID)"
// @Param        warehouse_id  query  string  true  "Bodega (UUID)"
// @Success      200  {array}  dto.EventDTO
// @Router       /api/inventory/events [get]
func (h *LedgerHandler) History(c *fiber.Ctx) error {
	institutionID, itemID, warehouseID, ok := aggregateParams(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "item_id y warehouse_id son requeridos"})
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()
	events, err := h.queries.History(c.Context(), institutionID, itemID, warehouseID, page)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"events": events, "page": dto.PageResponse{Limit: page.Limit, Offset: page.Offset}})
}

// Replay godoc
// @Summary      Estado reconstruido desde el log (opcionalmente as-of)
// @Description  Recorre los eventos del agregado y devuelve la proyección
//               reconstruida. as_of_sequence limita el replay a esa secuencia.
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        item_id         query  string  true   "Item (UUID)"
// @Param        warehouse_id    query  string  true   "Bodega (UUID)"
// @Param        as_of_sequence  query  int     false  "Replay hasta esta secuencia inclusive"
// @Success      200  {object}  dto.ProjectionDTO
// @Router       /api/inventory/replay [get]
func (h *LedgerHandler) Replay(c *fiber.Ctx) error {
	institutionID, itemID, warehouseID, ok := aggregateParams(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "item_id y warehouse_id son requeridos"})
	}
	asOf, _ := strconv.ParseInt(c.Query("as_of_sequence", "0"), 10, 64)
	p, err := h.queries.Replay(c.Context(), institutionID, itemID, warehouseID, asOf)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(p)
}

// Verify godoc
// @Summary      Verificar proyección contra el replay del log
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        item_id       query  string  true  "Item (UUID)"
// @Param        warehouse_id  query  string  true  "Bodega (UUID)"
// @Success      200  {object}  dto.VerifyResponse
// @Router       /api/inventory/verify [get]
func (h *LedgerHandler) Verify(c *fiber.Ctx) error {
	institutionID, itemID, warehouseID, ok := aggregateParams(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "item_id y warehouse_id son requeridos"})
	}
	out, err := h.queries.Verify(c.Context(), institutionID, itemID, warehouseID)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(out)
}

// MarkBatch godoc
// @Summary      Retirar un lote de circulación (expired, damaged, recalled)
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.MarkBatchRequest  true  "item_id, warehouse_id, batch_number, status, idempotency_key"
// @Success      201   {object}  dto.CommandResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/inventory/batches/status [post]
func (h *LedgerHandler) MarkBatch(c *fiber.Ctx) error {
	return runCommand(c, func(institutionID, userID string, in dto.MarkBatchRequest) (*dto.CommandResponse, error) {
		return h.commands.MarkBatch(c.Context(), institutionID, userID, in)
	})
}

// ListBatches godoc
// @Summary      Lotes de un item en una bodega
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        item_id       query  string  true  "Item (UUID)"
// @Param        warehouse_id  query  string  true  "Bodega (UUID)"
// @Success      200  {array}  dto.BatchDTO
// @Router       /api/inventory/batches [get]
func (h *LedgerHandler) ListBatches(c *fiber.Ctx) error {
	institutionID, itemID, warehouseID, ok := aggregateParams(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "item_id y warehouse_id son requeridos"})
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()
	batches, err := h.queries.ListBatches(c.Context(), institutionID, itemID, warehouseID, page)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"batches": batches, "page": dto.PageResponse{Limit: page.Limit, Offset: page.Offset}})
}

// ListReservations godoc
// @Summary      Reservas de un item en una bodega
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        item_id       query  string  true  "Item (UUID)"
// @Param        warehouse_id  query  string  true  "Bodega (UUID)"
// @Success      200  {array}  dto.ReservationDTO
// @Router       /api/inventory/reservations [get]
func (h *LedgerHandler) ListReservations(c *fiber.Ctx) error {
	institutionID, itemID, warehouseID, ok := aggregateParams(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "item_id y warehouse_id son requeridos"})
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()
	reservations, err := h.queries.ListReservations(c.Context(), institutionID, itemID, warehouseID, page)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"reservations": reservations, "page": dto.PageResponse{Limit: page.Limit, Offset: page.Offset}})
}

// ListSerials godoc
// @Summary      Seriales de un item en una bodega
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        item_id       query  string  true   "Item (UUID)"
// @Param        warehouse_id  query  string  true   "Bodega (UUID)"
// @Param        status        query  string  false  "Filtrar por estado (available, reserved, sold...)"
// @Success      200  {array}  dto.SerialDTO
// @Router       /api/inventory/serials [get]
func (h *LedgerHandler) ListSerials(c *fiber.Ctx) error {
	institutionID, itemID, warehouseID, ok := aggregateParams(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "item_id y warehouse_id son requeridos"})
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()
	serials, err := h.queries.ListSerials(c.Context(), institutionID, itemID, warehouseID, c.Query("status"), page)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"serials": serials, "page": dto.PageResponse{Limit: page.Limit, Offset: page.Offset}})
}
