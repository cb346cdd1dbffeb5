package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/ledger-inventario/internal/application/alerts"
	"github.com/jhoicas/ledger-inventario/internal/application/auth"
	"github.com/jhoicas/ledger-inventario/internal/application/ledger"
	"github.com/jhoicas/ledger-inventario/internal/application/usecase"
	"github.com/jhoicas/ledger-inventario/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/ledger-inventario/internal/interfaces/http"
	"github.com/jhoicas/ledger-inventario/pkg/config"
	"github.com/jhoicas/ledger-inventario/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	// Repos sobre el pool (lecturas y colaboradores fuera de transacción)
	userRepo := postgres.NewUserRepository(pool)
	itemRepo := postgres.NewItemRepository(pool)
	warehouseRepo := postgres.NewWarehouseRepository(pool)
	eventRepo := postgres.NewEventRepository(pool)
	projectionRepo := postgres.NewProjectionRepository(pool)
	batchRepo := postgres.NewBatchRepository(pool)
	serialRepo := postgres.NewSerialRepository(pool)
	reservationRepo := postgres.NewReservationRepository(pool)
	reorderRepo := postgres.NewReorderRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	alertUC := alerts.NewAlertUseCase(reorderRepo, projectionRepo, log)
	commandUC := ledger.NewCommandUseCase(txRunner, itemRepo, warehouseRepo, alertUC, ledger.Config{
		LockTimeout:  time.Duration(cfg.Ledger.LockTimeoutMS) * time.Millisecond,
		MaxRetries:   cfg.Ledger.MaxRetries,
		RetryBackoff: time.Duration(cfg.Ledger.RetryBackoffMS) * time.Millisecond,
	}, log)
	queryUC := ledger.NewQueryUseCase(eventRepo, projectionRepo, itemRepo, batchRepo, serialRepo, reservationRepo)

	itemUC := usecase.NewItemUseCase(itemRepo)
	warehouseUC := usecase.NewWarehouseUseCase(warehouseRepo)
	authUC := auth.NewAuthUseCase(userRepo, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Ledger Inventario API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		ItemUC:      itemUC,
		WarehouseUC: warehouseUC,
		Commands:    commandUC,
		Queries:     queryUC,
		AlertUC:     alertUC,
		AuthUC:      authUC,
		JWTSecret:   cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
