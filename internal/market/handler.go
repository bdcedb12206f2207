package market

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/stallpay/stallpay/internal/identity"
	"github.com/stallpay/stallpay/internal/ledger"
)

// Handler exposes purchase, tip and subscription endpoints. The buyer is the
// authenticated principal; sellers and amounts come from the request.
type Handler struct {
	service *Service
}

// NewHandler constructs a marketplace handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type purchaseRequest struct {
	ListingID   string `json:"listing_id"`
	Seller      string `json:"seller"`
	AmountCents int64  `json:"amount_cents"`
	IsAuction   bool   `json:"is_auction"`
}

// Purchase executes the fee-split purchase for the authenticated buyer.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	principal, ok := identity.FromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing principal")
	}
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Purchase(c.UserContext(), PurchaseInput{
		ListingID:   req.ListingID,
		Buyer:       principal.Username,
		Seller:      req.Seller,
		AmountCents: req.AmountCents,
		IsAuction:   req.IsAuction,
	})
	if err != nil {
		return fiber.NewError(ledger.HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id":      result.TransactionID,
		"buyer_debit_cents":   result.BuyerDebitCents,
		"seller_credit_cents": result.SellerCreditCents,
		"platform_fee_cents":  result.PlatformFeeCents,
	})
}

type transferRequest struct {
	Seller      string `json:"seller"`
	AmountCents int64  `json:"amount_cents"`
}

// Tip sends a no-fee tip from the authenticated buyer to a seller.
func (h *Handler) Tip(c *fiber.Ctx) error {
	return h.transfer(c, h.service.Tip)
}

// Subscribe posts a subscription payment from the authenticated buyer.
func (h *Handler) Subscribe(c *fiber.Ctx) error {
	return h.transfer(c, h.service.Subscribe)
}

func (h *Handler) transfer(c *fiber.Ctx, op func(ctx context.Context, buyer, seller string, amountCents int64) (ledger.TransferResult, error)) error {
	principal, ok := identity.FromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing principal")
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := op(c.UserContext(), principal.Username, req.Seller, req.AmountCents)
	if err != nil {
		return fiber.NewError(ledger.HTTPStatus(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": result.TransactionID,
		"amount_cents":   result.AmountCents,
		"fee_cents":      result.FeeCents,
	})
}
