package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ledgerStatus := "ok"
		identityStatus := "ok"
		redisStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.LedgerDB != nil {
			if err := d.LedgerDB.Ping(ctx); err != nil {
				ledgerStatus = err.Error()
			}
		}
		if d.IdentityDB != nil {
			if err := d.IdentityDB.Ping(ctx); err != nil {
				identityStatus = err.Error()
			}
		}
		if d.Cache != nil {
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}
		status := http.StatusOK
		if ledgerStatus != "ok" || identityStatus != "ok" || redisStatus != "ok" {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status": fiber.Map{
				"ledger_db":   ledgerStatus,
				"identity_db": identityStatus,
				"redis":       redisStatus,
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
