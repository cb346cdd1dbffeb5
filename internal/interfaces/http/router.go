package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ledger-inventario/internal/application/alerts"
	"github.com/jhoicas/ledger-inventario/internal/application/auth"
	"github.com/jhoicas/ledger-inventario/internal/application/ledger"
	"github.com/jhoicas/ledger-inventario/internal/application/usecase"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	ItemUC      *usecase.ItemUseCase
	WarehouseUC *usecase.WarehouseUseCase
	Commands    *ledger.CommandUseCase
	Queries     *ledger.QueryUseCase
	AlertUC     *alerts.AlertUseCase
	AuthUC      *auth.AuthUseCase
	JWTSecret   string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Auth (público)
	authGroup := api.Group("/auth")
	authHandler := NewAuthHandler(deps.AuthUC)
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Quién puede mover stock: vendedor solo reserva/libera/despacha.
	store := RequireRole(entity.RoleAdmin, entity.RoleBodeguero)
	sales := RequireRole(entity.RoleAdmin, entity.RoleBodeguero, entity.RoleVendedor)

	// Items (protegido)
	items := protected.Group("/items")
	itemHandler := NewItemHandler(deps.ItemUC)
	items.Post("/", store, itemHandler.Create)
	items.Get("/", itemHandler.List)
	items.Get("/:id", itemHandler.GetByID)
	items.Put("/:id", store, itemHandler.Update)
	items.Delete("/:id", RequireRole(entity.RoleAdmin), itemHandler.Delete)

	// Warehouses (protegido)
	warehouses := protected.Group("/warehouses")
	warehouseHandler := NewWarehouseHandler(deps.WarehouseUC)
	warehouses.Post("/", RequireRole(entity.RoleAdmin), warehouseHandler.Create)
	warehouses.Get("/", warehouseHandler.List)
	warehouses.Get("/:id", warehouseHandler.GetByID)

	// Ledger de inventario (protegido)
	inv := protected.Group("/inventory")
	ledgerHandler := NewLedgerHandler(deps.Commands, deps.Queries)
	inv.Post("/receive", store, ledgerHandler.Receive)
	inv.Post("/adjust", store, ledgerHandler.Adjust)
	inv.Post("/reserve", sales, ledgerHandler.Reserve)
	inv.Post("/release", sales, ledgerHandler.Release)
	inv.Post("/ship", sales, ledgerHandler.Ship)
	inv.Post("/transfer", store, ledgerHandler.Transfer)
	inv.Get("/stock", ledgerHandler.GetStock)
	inv.Get("/warehouses/:warehouse_id/stock", ledgerHandler.ListWarehouseStock)
	inv.Get("/events", ledgerHandler.History)
	inv.Get("/replay", ledgerHandler.Replay)
	inv.Get("/verify", ledgerHandler.Verify)
	inv.Post("/batches/status", store, ledgerHandler.MarkBatch)
	inv.Get("/batches", ledgerHandler.ListBatches)
	inv.Get("/serials", ledgerHandler.ListSerials)
	inv.Get("/reservations", ledgerHandler.ListReservations)

	// Reorden y alertas (protegido)
	alertHandler := NewAlertHandler(deps.AlertUC)
	inv.Put("/reorder-level", store, alertHandler.SetReorderLevel)
	alertsGroup := protected.Group("/alerts")
	alertsGroup.Get("/", alertHandler.ListOpenAlerts)
	alertsGroup.Post("/:id/acknowledge", alertHandler.Acknowledge)
	alertsGroup.Post("/:id/resolve", store, alertHandler.Resolve)
}
