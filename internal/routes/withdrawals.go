package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stallpay/stallpay/internal/payout"
)

// RegisterWithdrawalRoutes wires the user-facing withdrawal endpoint behind
// the rate limiter.
func RegisterWithdrawalRoutes(r fiber.Router, h *payout.Handler, rateLimiter fiber.Handler) {
	r.Post("/withdrawals", rateLimiter, h.Request)
}
