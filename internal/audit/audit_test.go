package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stallpay/stallpay/internal/ledger"
)

func TestReconcile_EngineOperationsBalance(t *testing.T) {
	store := ledger.NewMemoryStore()
	engine := ledger.NewEngine(store, ledger.DefaultFees())
	ctx := context.Background()

	buyer := ledger.AccountKey{Username: "alice", Role: ledger.RoleBuyer}
	seller := ledger.AccountKey{Username: "bob", Role: ledger.RoleSeller}

	// Fund through the ledger so the log fully explains every balance.
	if _, err := engine.AdminAdjust(ctx, ledger.AdminAdjustInput{
		AdminUser:   "root",
		TargetUser:  "alice",
		Role:        ledger.RoleBuyer,
		AmountCents: 50_000,
		Type:        ledger.AdjustCredit,
		Reason:      "test funding",
	}); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}

	if _, err := engine.Purchase(ctx, ledger.PurchaseInput{
		ListingID:   "listing-1",
		Buyer:       "alice",
		Seller:      "bob",
		AmountCents: 10_000,
	}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := engine.Tip(ctx, "alice", "bob", 500); err != nil {
		t.Fatalf("tip: %v", err)
	}
	w, err := engine.Withdraw(ctx, "bob", ledger.RoleSeller, 2_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := engine.FinalizeWithdrawal(ctx, w.TransactionID, false); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	rec := NewReconciler(store)
	for _, key := range []ledger.AccountKey{buyer, seller, ledger.PlatformAccount} {
		diff, err := rec.Reconcile(ctx, key)
		if err != nil {
			t.Fatalf("reconcile %v: %v", key, err)
		}
		if !diff.Balanced() {
			t.Errorf("account %v out of balance: stored=%d computed=%d",
				key, diff.StoredCents, diff.ComputedCents)
		}
	}
}

func TestReconcile_SeedDoesNotCountAsDrift(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()

	key := ledger.AccountKey{Username: "carol", Role: ledger.RoleSeller}
	ledger.SeedBalance(store, key, 7_500)

	diff, err := NewReconciler(store).Reconcile(ctx, key)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if diff.Balanced() {
		t.Fatalf("expected drift to be reported: %+v", diff)
	}
	if diff.DiffCents != 7_500 {
		t.Fatalf("diff = %d, want 7500", diff.DiffCents)
	}

	// Reporting must not have corrected anything.
	acct, err := store.Account(ctx, key)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acct.BalanceCents != 7_500 {
		t.Fatalf("balance mutated by reconcile: %d", acct.BalanceCents)
	}
}

func TestReconcile_UnknownAccountIsBalancedZero(t *testing.T) {
	store := ledger.NewMemoryStore()

	diff, err := NewReconciler(store).Reconcile(context.Background(),
		ledger.AccountKey{Username: "ghost", Role: ledger.RoleBuyer})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !diff.Balanced() || diff.StoredCents != 0 || diff.TransactionCount != 0 {
		t.Fatalf("unexpected diff: %+v", diff)
	}
}

func appendTx(t *testing.T, store ledger.Store, tx ledger.Transaction) {
	t.Helper()
	if err := store.Apply(context.Background(), ledger.Mutation{Transactions: []ledger.Transaction{tx}}); err != nil {
		t.Fatalf("append %s: %v", tx.ID, err)
	}
}

func TestSuspicion_DrainAfterLargeCredit(t *testing.T) {
	store := ledger.NewMemoryStore()
	key := ledger.AccountKey{Username: "mallory", Role: ledger.RoleSeller}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	appendTx(t, store, ledger.Transaction{
		ID: "c-1", Kind: ledger.KindPurchase, Date: base, AmountCents: 20_000,
		Status:  ledger.StatusCompleted,
		Entries: []ledger.Entry{{Account: key, AmountCents: 20_000}},
	})
	appendTx(t, store, ledger.Transaction{
		ID: "w-1", Kind: ledger.KindWithdrawal, Date: base.Add(10 * time.Minute), AmountCents: 19_000,
		Status:  ledger.StatusPending,
		Entries: []ledger.Entry{{Account: key, AmountCents: -19_000}},
	})

	report, err := NewDetector(store, DefaultThresholds()).CheckSuspiciousActivity(context.Background(), "mallory")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !report.Suspicious {
		t.Fatalf("drain not flagged: %+v", report)
	}
	if !strings.Contains(strings.Join(report.Reasons, "\n"), "withdrawal") {
		t.Fatalf("unexpected reasons: %v", report.Reasons)
	}
}

func TestSuspicion_SlowWithdrawalIsClean(t *testing.T) {
	store := ledger.NewMemoryStore()
	key := ledger.AccountKey{Username: "pat", Role: ledger.RoleSeller}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	appendTx(t, store, ledger.Transaction{
		ID: "c-1", Kind: ledger.KindPurchase, Date: base, AmountCents: 20_000,
		Status:  ledger.StatusCompleted,
		Entries: []ledger.Entry{{Account: key, AmountCents: 20_000}},
	})
	// Outside the drain window.
	appendTx(t, store, ledger.Transaction{
		ID: "w-1", Kind: ledger.KindWithdrawal, Date: base.Add(3 * time.Hour), AmountCents: 19_000,
		Status:  ledger.StatusPending,
		Entries: []ledger.Entry{{Account: key, AmountCents: -19_000}},
	})

	report, err := NewDetector(store, DefaultThresholds()).CheckSuspiciousActivity(context.Background(), "pat")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if report.Suspicious {
		t.Fatalf("false positive: %+v", report)
	}
}

func TestSuspicion_ReversalWithdrawalsIgnored(t *testing.T) {
	store := ledger.NewMemoryStore()
	key := ledger.AccountKey{Username: "pat", Role: ledger.RoleSeller}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	appendTx(t, store, ledger.Transaction{
		ID: "c-1", Kind: ledger.KindPurchase, Date: base, AmountCents: 20_000,
		Status:  ledger.StatusCompleted,
		Entries: []ledger.Entry{{Account: key, AmountCents: 20_000}},
	})
	// A compensating credit for a failed payout is not a drain.
	appendTx(t, store, ledger.Transaction{
		ID: "w-rev", Kind: ledger.KindWithdrawal, Date: base.Add(5 * time.Minute), AmountCents: 19_000,
		Status:   ledger.StatusCompleted,
		Entries:  []ledger.Entry{{Account: key, AmountCents: 19_000}},
		Metadata: map[string]string{"reversal_of": "w-0"},
	})

	report, err := NewDetector(store, DefaultThresholds()).CheckSuspiciousActivity(context.Background(), "pat")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if report.Suspicious {
		t.Fatalf("reversal flagged: %+v", report)
	}
}

func TestSuspicion_BurstVelocity(t *testing.T) {
	store := ledger.NewMemoryStore()
	key := ledger.AccountKey{Username: "rapid", Role: ledger.RoleBuyer}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		appendTx(t, store, ledger.Transaction{
			ID:   "t-" + string(rune('a'+i)),
			Kind: ledger.KindTip, Date: base.Add(time.Duration(i) * 30 * time.Second),
			AmountCents: 100, Status: ledger.StatusCompleted,
			Entries: []ledger.Entry{{Account: key, AmountCents: -100}},
		})
	}

	report, err := NewDetector(store, DefaultThresholds()).CheckSuspiciousActivity(context.Background(), "rapid")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !report.Suspicious {
		t.Fatalf("burst not flagged: %+v", report)
	}
}

func TestSuspicion_RoundNumberPair(t *testing.T) {
	store := ledger.NewMemoryStore()
	key := ledger.AccountKey{Username: "prober", Role: ledger.RoleBuyer}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	appendTx(t, store, ledger.Transaction{
		ID: "d-1", Kind: ledger.KindDeposit, Date: base, AmountCents: 50_000,
		Status:  ledger.StatusCompleted,
		Entries: []ledger.Entry{{Account: key, AmountCents: 50_000}},
	})
	appendTx(t, store, ledger.Transaction{
		ID: "w-1", Kind: ledger.KindWithdrawal, Date: base.Add(2 * time.Hour), AmountCents: 50_000,
		Status:  ledger.StatusPending,
		Entries: []ledger.Entry{{Account: key, AmountCents: -50_000}},
	})

	report, err := NewDetector(store, DefaultThresholds()).CheckSuspiciousActivity(context.Background(), "prober")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !report.Suspicious {
		t.Fatalf("round-number pair not flagged: %+v", report)
	}
}

func TestSuspicion_EmptyHistoryIsClean(t *testing.T) {
	store := ledger.NewMemoryStore()

	report, err := NewDetector(store, DefaultThresholds()).CheckSuspiciousActivity(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if report.Suspicious || len(report.Reasons) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}
