package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vaultrent/vaultrent/internal/identity"
)

// RegisterIdentityRoutes wires user registration.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/users", h.Register)
}
