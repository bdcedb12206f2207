package tier

import (
	"context"

	"github.com/stallpay/stallpay/internal/ledger"
)

// LedgerVolumes reads a seller's historical sales volume straight from the
// transaction log: the sum of purchase credits to the seller account.
type LedgerVolumes struct {
	store ledger.Store
}

// NewLedgerVolumes builds a volume reader over the ledger store.
func NewLedgerVolumes(store ledger.Store) *LedgerVolumes {
	return &LedgerVolumes{store: store}
}

// SalesVolumeCents sums the seller's purchase proceeds.
func (v *LedgerVolumes) SalesVolumeCents(ctx context.Context, seller string) (int64, error) {
	key := ledger.AccountKey{Username: seller, Role: ledger.RoleSeller}
	transactions, err := v.store.AccountTransactions(ctx, key)
	if err != nil {
		return 0, err
	}
	var volume int64
	for _, tx := range transactions {
		if tx.Kind != ledger.KindPurchase {
			continue
		}
		if credit := tx.EntryFor(key); credit > 0 {
			volume += credit
		}
	}
	return volume, nil
}
