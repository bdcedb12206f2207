package ledger

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HTTPStatus maps the ledger error taxonomy to HTTP status codes. Handlers
// across the service share it so failure surfaces stay consistent.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrReasonRequired):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Handler exposes balance and transaction-log read endpoints plus admin
// adjustments.
type Handler struct {
	engine *Engine
}

// NewHandler builds a ledger HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Balance returns the current balance for an account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	role, err := ParseRole(c.Params("role"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	username := c.Params("username")

	balance, err := h.engine.GetBalance(c.UserContext(), username, role)
	if err != nil {
		return fiber.NewError(HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"username":      username,
		"role":          role,
		"balance_cents": balance,
		"timestamp":     time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type transactionResponse struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Date        time.Time         `json:"date"`
	AmountCents int64             `json:"amount_cents"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// History returns the transaction history for a user, most recent first.
func (h *Handler) History(c *fiber.Ctx) error {
	username := c.Query("username")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return fiber.NewError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	transactions, err := h.engine.GetTransactionHistory(c.UserContext(), username, limit)
	if err != nil {
		return fiber.NewError(HTTPStatus(err), err.Error())
	}

	out := make([]transactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		out = append(out, transactionResponse{
			ID:          tx.ID,
			Kind:        string(tx.Kind),
			Date:        tx.Date,
			AmountCents: tx.AmountCents,
			Status:      string(tx.Status),
			Metadata:    tx.Metadata,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}

type adjustRequest struct {
	AdminUser   string `json:"admin_user"`
	TargetUser  string `json:"target_user"`
	Role        string `json:"role"`
	AmountCents int64  `json:"amount_cents"`
	Type        string `json:"type"`
	Reason      string `json:"reason"`
}

// AdminAdjust applies a manual credit or debit with a mandatory reason.
func (h *Handler) AdminAdjust(c *fiber.Ctx) error {
	var req adjustRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.engine.AdminAdjust(c.UserContext(), AdminAdjustInput{
		AdminUser:   req.AdminUser,
		TargetUser:  req.TargetUser,
		Role:        role,
		AmountCents: req.AmountCents,
		Type:        AdjustType(req.Type),
		Reason:      req.Reason,
	})
	if err != nil {
		return fiber.NewError(HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": result.TransactionID,
		"amount_cents":   result.AmountCents,
	})
}
