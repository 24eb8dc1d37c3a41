package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vaultrent/vaultrent/internal/config"
	"github.com/vaultrent/vaultrent/internal/identity"
	"github.com/vaultrent/vaultrent/internal/middleware"
	"github.com/vaultrent/vaultrent/internal/rental"
)

// Deps aggregates shared dependencies required to wire routes. The domain
// services are constructed in main, where the background worker also needs
// them.
type Deps struct {
	Cfg        config.Config
	LedgerDB   *pgxpool.Pool
	IdentityDB *pgxpool.Pool
	Cache      *redis.Client
	Logger     *slog.Logger
	Registrar  *identity.Registrar
	Rental     *rental.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Registrar == nil || d.Rental == nil {
		return fmt.Errorf("registrar and rental service are required")
	}
	if !d.Cfg.Dev() {
		if d.LedgerDB == nil || d.IdentityDB == nil {
			return fmt.Errorf("both databases are required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app)

	identityHandler := identity.NewHandler(d.Registrar)
	rentalHandler := rental.NewHandler(d.Rental)

	api := app.Group("/api/v1")
	RegisterIdentityRoutes(api, identityHandler)
	RegisterRentalRoutes(api, rentalHandler)

	return nil
}
