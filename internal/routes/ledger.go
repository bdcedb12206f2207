package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stallpay/stallpay/internal/ledger"
)

// RegisterLedgerRoutes wires balance and transaction-history endpoints.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler) {
	r.Get("/wallets/:username/:role/balance", h.Balance)
	r.Get("/transactions", h.History)
}
