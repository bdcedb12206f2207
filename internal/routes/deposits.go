package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stallpay/stallpay/internal/deposit"
)

// RegisterDepositRoutes wires the depositor-facing deposit lifecycle.
func RegisterDepositRoutes(r fiber.Router, h *deposit.Handler) {
	r.Post("/deposits", h.Create)
	r.Get("/deposits/:depositId", h.Get)
	r.Post("/deposits/:depositId/hash", h.AttachHash)
}
