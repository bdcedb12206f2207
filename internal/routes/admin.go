package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stallpay/stallpay/internal/audit"
	"github.com/stallpay/stallpay/internal/deposit"
	"github.com/stallpay/stallpay/internal/ledger"
	"github.com/stallpay/stallpay/internal/payout"
)

// RegisterAdminRoutes wires the admin surface: manual adjustments, withdrawal
// finalization, the deposit review queue, and audit scans.
func RegisterAdminRoutes(r fiber.Router, ledgerH *ledger.Handler, payoutH *payout.Handler, depositH *deposit.Handler, auditH *audit.Handler) {
	r.Post("/adjustments", ledgerH.AdminAdjust)
	r.Post("/withdrawals/:withdrawalId/finalize", payoutH.Finalize)
	r.Get("/deposits", depositH.Queue)
	r.Post("/deposits/expire", depositH.Expire)
	r.Post("/deposits/:depositId/verify", depositH.Verify)
	r.Post("/deposits/:depositId/reject", depositH.Reject)
	r.Get("/reconcile/:username/:role", auditH.Reconcile)
	r.Get("/suspicion/:username", auditH.Suspicion)
}
