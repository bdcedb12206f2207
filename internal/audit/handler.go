package audit

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/stallpay/stallpay/internal/ledger"
)

// Handler exposes reconciliation and suspicion scans behind the admin guard.
type Handler struct {
	reconciler *Reconciler
	detector   *Detector
}

// NewHandler constructs an audit handler.
func NewHandler(reconciler *Reconciler, detector *Detector) *Handler {
	return &Handler{reconciler: reconciler, detector: detector}
}

// Reconcile replays an account's history and reports the diff.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	role, err := ledger.ParseRole(c.Params("role"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	key := ledger.AccountKey{Username: c.Params("username"), Role: role}

	diff, err := h.reconciler.Reconcile(c.UserContext(), key)
	if err != nil {
		return fiber.NewError(ledger.HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"username":          key.Username,
		"role":              key.Role,
		"stored_cents":      diff.StoredCents,
		"computed_cents":    diff.ComputedCents,
		"diff_cents":        diff.DiffCents,
		"transaction_count": diff.TransactionCount,
		"balanced":          diff.Balanced(),
	})
}

// Suspicion runs the advisory heuristics over a user's recent activity.
func (h *Handler) Suspicion(c *fiber.Ctx) error {
	report, err := h.detector.CheckSuspiciousActivity(c.UserContext(), c.Params("username"))
	if err != nil {
		return fiber.NewError(ledger.HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"username":   report.Username,
		"suspicious": report.Suspicious,
		"reasons":    report.Reasons,
	})
}
