package payout

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/stallpay/stallpay/internal/identity"
	"github.com/stallpay/stallpay/internal/ledger"
)

// Handler exposes withdrawal endpoints. Requests come from the authenticated
// account owner; finalization comes from the payout rail callback behind the
// admin guard.
type Handler struct {
	service *Service
}

// NewHandler constructs a payout handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type withdrawRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

// Request debits the caller's account and submits the payout.
func (h *Handler) Request(c *fiber.Ctx) error {
	principal, ok := identity.FromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing principal")
	}
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Request(c.UserContext(), principal.Username, principal.Role, req.AmountCents)
	if err != nil {
		return fiber.NewError(ledger.HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"withdrawal_id":  result.WithdrawalID,
		"amount_cents":   result.AmountCents,
		"rail_reference": result.RailReference,
		"status":         ledger.StatusPending,
	})
}

type finalizeRequest struct {
	Success bool `json:"success"`
}

// Finalize applies the rail's reported outcome for a pending withdrawal.
func (h *Handler) Finalize(c *fiber.Ctx) error {
	var req finalizeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	tx, err := h.service.Finalize(c.UserContext(), c.Params("withdrawalId"), req.Success)
	if err != nil {
		return fiber.NewError(ledger.HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"withdrawal_id": tx.ID,
		"status":        tx.Status,
	})
}
