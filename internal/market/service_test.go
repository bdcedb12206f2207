package market

import (
	"context"
	"errors"
	"testing"

	"github.com/stallpay/stallpay/internal/ledger"
	"github.com/stallpay/stallpay/internal/notification"
	"github.com/stallpay/stallpay/internal/tier"
)

type capturingNotifier struct {
	events []notification.Event
}

func (n *capturingNotifier) Send(_ context.Context, event notification.Event) error {
	n.events = append(n.events, event)
	return nil
}

type fixedVolumes struct {
	cents int64
}

func (v fixedVolumes) SalesVolumeCents(_ context.Context, _ string) (int64, error) {
	return v.cents, nil
}

func newTestService(volumeCents int64) (*Service, ledger.Store, *capturingNotifier) {
	store := ledger.NewMemoryStore()
	engine := ledger.NewEngine(store, ledger.DefaultFees())
	notifier := &capturingNotifier{}
	tiers := tier.NewStaticSource(fixedVolumes{cents: volumeCents}, tier.DefaultThresholds())
	return NewService(engine, tiers, notifier), store, notifier
}

func TestPurchase_AppliesResolvedTierRate(t *testing.T) {
	// $2,000 of lifetime sales sits in the 5% tier.
	svc, store, notifier := newTestService(200_000)
	ctx := context.Background()

	buyer := ledger.AccountKey{Username: "alice", Role: ledger.RoleBuyer}
	ledger.SeedBalance(store, buyer, 20_000)

	result, err := svc.Purchase(ctx, PurchaseInput{
		ListingID:   "listing-9",
		Buyer:       "alice",
		Seller:      "bob",
		AmountCents: 10_000,
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// 10000 - 1000 fee + 500 tier credit.
	if result.SellerCreditCents != 9_500 {
		t.Fatalf("seller credit = %d, want 9500", result.SellerCreditCents)
	}
	if result.BuyerDebitCents != 11_000 {
		t.Fatalf("buyer debit = %d, want 11000", result.BuyerDebitCents)
	}

	if len(notifier.events) != 1 || notifier.events[0].Kind != notification.KindPurchase {
		t.Fatalf("unexpected notifications: %+v", notifier.events)
	}
	if notifier.events[0].Destination != "bob" {
		t.Fatalf("notification sent to %s, want bob", notifier.events[0].Destination)
	}
}

func TestPurchase_ZeroVolumeSellerGetsNoCredit(t *testing.T) {
	svc, store, _ := newTestService(0)
	ctx := context.Background()

	ledger.SeedBalance(store, ledger.AccountKey{Username: "alice", Role: ledger.RoleBuyer}, 20_000)

	result, err := svc.Purchase(ctx, PurchaseInput{
		ListingID:   "listing-9",
		Buyer:       "alice",
		Seller:      "newcomer",
		AmountCents: 10_000,
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if result.SellerCreditCents != 9_000 {
		t.Fatalf("seller credit = %d, want 9000", result.SellerCreditCents)
	}
}

func TestPurchase_FailureSendsNoNotification(t *testing.T) {
	svc, _, notifier := newTestService(0)

	_, err := svc.Purchase(context.Background(), PurchaseInput{
		ListingID:   "listing-9",
		Buyer:       "broke",
		Seller:      "bob",
		AmountCents: 10_000,
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("notification sent for failed purchase: %+v", notifier.events)
	}
}

func TestTip_NotifiesSeller(t *testing.T) {
	svc, store, notifier := newTestService(0)
	ctx := context.Background()

	ledger.SeedBalance(store, ledger.AccountKey{Username: "alice", Role: ledger.RoleBuyer}, 1_000)

	if _, err := svc.Tip(ctx, "alice", "bob", 750); err != nil {
		t.Fatalf("tip: %v", err)
	}
	if len(notifier.events) != 1 || notifier.events[0].Kind != notification.KindTip {
		t.Fatalf("unexpected notifications: %+v", notifier.events)
	}
}

func TestSubscribe_WithholdsCommission(t *testing.T) {
	svc, store, notifier := newTestService(0)
	ctx := context.Background()

	ledger.SeedBalance(store, ledger.AccountKey{Username: "alice", Role: ledger.RoleBuyer}, 10_000)

	result, err := svc.Subscribe(ctx, "alice", "bob", 4_000)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if result.FeeCents != 1_000 {
		t.Fatalf("fee = %d, want 1000 (25%%)", result.FeeCents)
	}
	if len(notifier.events) != 1 || notifier.events[0].Kind != notification.KindSubscription {
		t.Fatalf("unexpected notifications: %+v", notifier.events)
	}
}

func TestTierRatesFromLedgerVolume(t *testing.T) {
	store := ledger.NewMemoryStore()
	engine := ledger.NewEngine(store, ledger.DefaultFees())
	ctx := context.Background()

	ledger.SeedBalance(store, ledger.AccountKey{Username: "alice", Role: ledger.RoleBuyer}, 10_000_000)

	tiers := tier.NewStaticSource(tier.NewLedgerVolumes(store), tier.DefaultThresholds())

	rate, err := tiers.CreditRate(ctx, "bob")
	if err != nil {
		t.Fatalf("credit rate: %v", err)
	}
	if rate != 0 {
		t.Fatalf("fresh seller rate = %v, want 0", rate)
	}

	// Push bob over the first tier threshold with real sales.
	for i := 0; i < 12; i++ {
		if _, err := engine.Purchase(ctx, ledger.PurchaseInput{
			ListingID:   "listing",
			Buyer:       "alice",
			Seller:      "bob",
			AmountCents: 10_000,
		}); err != nil {
			t.Fatalf("purchase %d: %v", i, err)
		}
	}

	rate, err = tiers.CreditRate(ctx, "bob")
	if err != nil {
		t.Fatalf("credit rate: %v", err)
	}
	if rate != 0.05 {
		t.Fatalf("rate = %v, want 0.05", rate)
	}
}
