package market

import (
	"context"
	"fmt"

	"github.com/stallpay/stallpay/internal/ledger"
	"github.com/stallpay/stallpay/internal/notification"
	"github.com/stallpay/stallpay/internal/tier"
)

// Service wires marketplace money movements through the ledger engine: it
// resolves the seller's tier credit, posts the operation, and emits the
// resulting domain event.
type Service struct {
	engine   *ledger.Engine
	tiers    tier.Source
	notifier notification.Notifier
}

// NewService constructs the marketplace service.
func NewService(engine *ledger.Engine, tiers tier.Source, notifier notification.Notifier) *Service {
	return &Service{engine: engine, tiers: tiers, notifier: notifier}
}

// PurchaseInput captures a catalog purchase or a won auction.
type PurchaseInput struct {
	ListingID   string
	Buyer       string
	Seller      string
	AmountCents int64
	IsAuction   bool
}

// Purchase runs the escrow-style split: buyer pays the marked-up price, the
// seller receives the proceeds plus tier credit, the platform keeps the rest.
func (s *Service) Purchase(ctx context.Context, input PurchaseInput) (ledger.PurchaseResult, error) {
	rate := 0.0
	if s.tiers != nil {
		var err error
		rate, err = s.tiers.CreditRate(ctx, input.Seller)
		if err != nil {
			return ledger.PurchaseResult{}, fmt.Errorf("resolve tier rate: %w", err)
		}
	}

	result, err := s.engine.Purchase(ctx, ledger.PurchaseInput{
		ListingID:      input.ListingID,
		Buyer:          input.Buyer,
		Seller:         input.Seller,
		AmountCents:    input.AmountCents,
		IsAuction:      input.IsAuction,
		TierCreditRate: rate,
	})
	if err != nil {
		return ledger.PurchaseResult{}, err
	}

	s.notify(ctx, notification.Event{
		Kind:        notification.KindPurchase,
		Destination: input.Seller,
		Body:        fmt.Sprintf("Listing %s sold: %d cents credited", input.ListingID, result.SellerCreditCents),
	})
	return result, nil
}

// Tip transfers the full amount from buyer to seller.
func (s *Service) Tip(ctx context.Context, buyer, seller string, amountCents int64) (ledger.TransferResult, error) {
	result, err := s.engine.Tip(ctx, buyer, seller, amountCents)
	if err != nil {
		return ledger.TransferResult{}, err
	}
	s.notify(ctx, notification.Event{
		Kind:        notification.KindTip,
		Destination: seller,
		Body:        fmt.Sprintf("You received a %d cent tip from %s", amountCents, buyer),
	})
	return result, nil
}

// Subscribe posts a subscription payment with the platform commission
// withheld.
func (s *Service) Subscribe(ctx context.Context, buyer, seller string, amountCents int64) (ledger.TransferResult, error) {
	result, err := s.engine.Subscription(ctx, buyer, seller, amountCents)
	if err != nil {
		return ledger.TransferResult{}, err
	}
	s.notify(ctx, notification.Event{
		Kind:        notification.KindSubscription,
		Destination: seller,
		Body:        fmt.Sprintf("Subscription payment from %s: %d cents", buyer, amountCents-result.FeeCents),
	})
	return result, nil
}

func (s *Service) notify(ctx context.Context, event notification.Event) {
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, event)
	}
}
