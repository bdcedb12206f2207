package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stallpay/stallpay/internal/market"
)

// RegisterMarketRoutes wires purchase, tip and subscription endpoints.
func RegisterMarketRoutes(r fiber.Router, h *market.Handler) {
	r.Post("/market/purchases", h.Purchase)
	r.Post("/market/tips", h.Tip)
	r.Post("/market/subscriptions", h.Subscribe)
}
