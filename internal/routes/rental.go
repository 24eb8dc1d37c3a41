package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vaultrent/vaultrent/internal/rental"
)

// RegisterRentalRoutes wires wallet rental and deposit endpoints.
func RegisterRentalRoutes(r fiber.Router, h *rental.Handler) {
	r.Post("/rentals", h.Rent)
	r.Post("/deposits", h.Deposit)
}
