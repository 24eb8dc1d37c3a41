package identity

import (
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity HTTP endpoints.
type Handler struct {
	registrar *Registrar
	validate  *validator.Validate
}

// NewHandler builds an identity HTTP handler.
func NewHandler(registrar *Registrar) *Handler {
	return &Handler{
		registrar: registrar,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

type registerRequest struct {
	UID string `json:"uid" validate:"required"`
}

// Register creates (or overwrites) a user record.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "uid is required")
	}

	user, err := h.registrar.Register(c.UserContext(), req.UID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"uid":     user.UID,
		"balance": user.Balance,
	})
}
