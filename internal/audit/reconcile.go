package audit

import (
	"context"
	"errors"

	"github.com/stallpay/stallpay/internal/ledger"
)

// Diff is the outcome of replaying an account's transaction history against
// its stored balance. A non-zero difference is reported, never auto-corrected:
// corrections go through an explicit admin adjustment so the audit trail
// records who fixed what and why.
type Diff struct {
	Account          ledger.AccountKey
	StoredCents      int64
	ComputedCents    int64
	DiffCents        int64
	TransactionCount int
}

// Balanced reports whether the replay matched the stored balance.
func (d Diff) Balanced() bool { return d.DiffCents == 0 }

// Reconciler replays the transaction log to verify stored balances. It holds
// the log read-only; the engine remains the only writer.
type Reconciler struct {
	store ledger.Store
}

// NewReconciler builds a reconciler over the ledger store.
func NewReconciler(store ledger.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile replays the account's transactions in append order, sums the
// signed entries, and compares the result to the stored balance.
func (r *Reconciler) Reconcile(ctx context.Context, key ledger.AccountKey) (Diff, error) {
	var stored int64
	acct, err := r.store.Account(ctx, key)
	switch {
	case err == nil:
		stored = acct.BalanceCents
	case errors.Is(err, ledger.ErrNotFound):
		stored = 0
	default:
		return Diff{}, err
	}

	transactions, err := r.store.AccountTransactions(ctx, key)
	if err != nil {
		return Diff{}, err
	}

	var computed int64
	for _, tx := range transactions {
		computed += tx.EntryFor(key)
	}

	return Diff{
		Account:          key,
		StoredCents:      stored,
		ComputedCents:    computed,
		DiffCents:        stored - computed,
		TransactionCount: len(transactions),
	}, nil
}
