package rental

import (
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Handler exposes the rental HTTP endpoints. It carries no business logic:
// it parses payloads, delegates to the service, and maps error kinds to
// status codes.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a rental HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type rentRequest struct {
	UID string `json:"uid" validate:"required"`
}

type depositRequest struct {
	WalletNumber int64 `json:"wallet_number" validate:"required,gt=0"`
	Amount       int64 `json:"amount"`
}

// Rent grants the user a wallet lease and returns the wallet number.
func (h *Handler) Rent(c *fiber.Ctx) error {
	var req rentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "uid is required")
	}

	number, err := h.service.Rent(c.UserContext(), req.UID)
	if err != nil {
		return fiber.NewError(statusFor(err), err.Error())
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_number": number,
	})
}

// Deposit applies a deposit to a wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "wallet_number is required")
	}

	if err := h.service.Deposit(c.UserContext(), req.WalletNumber, req.Amount); err != nil {
		return fiber.NewError(statusFor(err), err.Error())
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "accepted",
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrLeaseExpired):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
