package deposit

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/stallpay/stallpay/internal/identity"
	"github.com/stallpay/stallpay/internal/ledger"
)

// Handler exposes the deposit lifecycle over HTTP. Creation and hash
// attachment belong to the depositor; verification and rejection sit behind
// the admin guard.
type Handler struct {
	service *Service
}

// NewHandler constructs a deposit handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func status(err error) int {
	if errors.Is(err, ErrAmountOutOfTolerance) {
		return http.StatusUnprocessableEntity
	}
	return ledger.HTTPStatus(err)
}

type depositResponse struct {
	ID                   string    `json:"id"`
	Username             string    `json:"username"`
	AmountCents          int64     `json:"amount_cents"`
	Currency             string    `json:"currency"`
	QuotedRate           string    `json:"quoted_rate"`
	ExpectedCryptoAmount string    `json:"expected_crypto_amount"`
	WalletAddress        string    `json:"wallet_address"`
	TxHash               string    `json:"tx_hash,omitempty"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	ExpiresAt            time.Time `json:"expires_at"`
	VerifiedAmountCents  int64     `json:"verified_amount_cents,omitempty"`
	RejectReason         string    `json:"reject_reason,omitempty"`
}

func toResponse(d Deposit) depositResponse {
	return depositResponse{
		ID:                   d.ID,
		Username:             d.Username,
		AmountCents:          d.AmountCents,
		Currency:             d.Currency,
		QuotedRate:           d.QuotedRate.String(),
		ExpectedCryptoAmount: d.ExpectedCryptoAmount.String(),
		WalletAddress:        d.WalletAddress,
		TxHash:               d.TxHash,
		Status:               string(d.Status),
		CreatedAt:            d.CreatedAt,
		ExpiresAt:            d.ExpiresAt,
		VerifiedAmountCents:  d.VerifiedAmountCents,
		RejectReason:         d.RejectReason,
	}
}

type createRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// Create opens a pending deposit for the authenticated user.
func (h *Handler) Create(c *fiber.Ctx) error {
	principal, ok := identity.FromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing principal")
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	d, err := h.service.Create(c.UserContext(), principal.Username, req.AmountCents, req.Currency)
	if err != nil {
		return fiber.NewError(status(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(d))
}

// Get returns a deposit, applying lazy expiry. Callers can only see their own
// deposits; others read as not found so deposit ids cannot be enumerated.
func (h *Handler) Get(c *fiber.Ctx) error {
	principal, ok := identity.FromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing principal")
	}
	d, err := h.service.Get(c.UserContext(), c.Params("depositId"))
	if err != nil {
		return fiber.NewError(status(err), err.Error())
	}
	if d.Username != principal.Username {
		return fiber.NewError(http.StatusNotFound, ledger.ErrNotFound.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(d))
}

type attachHashRequest struct {
	TxHash string `json:"tx_hash"`
}

// AttachHash records the depositor's claimed transaction hash. Only the
// deposit's owner may attach; anyone else could otherwise force a foreign
// deposit into confirming and block its expiry.
func (h *Handler) AttachHash(c *fiber.Ctx) error {
	principal, ok := identity.FromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing principal")
	}
	var req attachHashRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	current, err := h.service.Get(c.UserContext(), c.Params("depositId"))
	if err != nil {
		return fiber.NewError(status(err), err.Error())
	}
	if current.Username != principal.Username {
		return fiber.NewError(http.StatusNotFound, ledger.ErrNotFound.Error())
	}

	d, err := h.service.AttachTxHash(c.UserContext(), current.ID, req.TxHash)
	if err != nil {
		return fiber.NewError(status(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(d))
}

// Queue lists deposits awaiting admin action.
func (h *Handler) Queue(c *fiber.Ctx) error {
	queueStatus := Status(c.Query("status", string(StatusConfirming)))
	deposits, err := h.service.Queue(c.UserContext(), queueStatus)
	if err != nil {
		return fiber.NewError(status(err), err.Error())
	}
	out := make([]depositResponse, 0, len(deposits))
	for _, d := range deposits {
		out = append(out, toResponse(d))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"deposits": out})
}

// Expire sweeps pending deposits past their expiry.
func (h *Handler) Expire(c *fiber.Ctx) error {
	count, err := h.service.ExpirePending(c.UserContext())
	if err != nil {
		return fiber.NewError(status(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"expired": count})
}

type verifyRequest struct {
	AdminUser           string `json:"admin_user"`
	VerifiedAmountCents int64  `json:"verified_amount_cents"`
	Notes               string `json:"notes"`
}

// Verify attests to the on-chain amount and credits the depositor.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	d, err := h.service.AdminVerify(c.UserContext(), c.Params("depositId"), req.AdminUser, req.VerifiedAmountCents, req.Notes)
	if err != nil {
		return fiber.NewError(status(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(d))
}

type rejectRequest struct {
	AdminUser string `json:"admin_user"`
	Reason    string `json:"reason"`
}

// Reject closes a confirming deposit without credit.
func (h *Handler) Reject(c *fiber.Ctx) error {
	var req rejectRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	d, err := h.service.AdminReject(c.UserContext(), c.Params("depositId"), req.AdminUser, req.Reason)
	if err != nil {
		return fiber.NewError(status(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(d))
}
