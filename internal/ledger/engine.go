package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	bpsDenominator = 10_000

	// applyRetries bounds internal retries on version conflicts before the
	// conflict is surfaced to the caller.
	applyRetries = 3
)

// FeeSchedule holds the commission parameters applied by the engine. Rates
// are expressed in basis points so cent math stays integral.
type FeeSchedule struct {
	// MarkupBps is added on top of the listed price to compute the buyer's
	// total payable amount.
	MarkupBps int64
	// PlatformFeeBps is the base commission withheld from the seller on a
	// purchase.
	PlatformFeeBps int64
	// SubscriptionFeeBps is the platform commission on subscription payments.
	SubscriptionFeeBps int64
	// MinFeeCents is the platform fee floor per purchase; tier credits never
	// eat into it.
	MinFeeCents int64
}

// DefaultFees returns the production fee schedule: 10% markup, 10% platform
// fee, 25% subscription commission, 50 cent fee floor.
func DefaultFees() FeeSchedule {
	return FeeSchedule{
		MarkupBps:          1_000,
		PlatformFeeBps:     1_000,
		SubscriptionFeeBps: 2_500,
		MinFeeCents:        50,
	}
}

// Engine owns every balance mutation. All operations are atomic: the balance
// deltas and transaction appends for one operation commit together or not at
// all, and version conflicts are retried a bounded number of times.
type Engine struct {
	store Store
	fees  FeeSchedule
	now   func() time.Time
}

// NewEngine builds the ledger engine over a store.
func NewEngine(store Store, fees FeeSchedule) *Engine {
	return &Engine{store: store, fees: fees, now: func() time.Time { return time.Now().UTC() }}
}

// Store exposes the underlying store for read-only collaborators.
func (e *Engine) Store() Store { return e.store }

// GetBalance returns the current balance for an account, zero if the account
// has never transacted.
func (e *Engine) GetBalance(ctx context.Context, username string, role Role) (int64, error) {
	acct, err := e.store.Account(ctx, AccountKey{Username: username, Role: role})
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.BalanceCents, nil
}

// GetTransactionHistory returns transactions touching the username's
// accounts, most recent first.
func (e *Engine) GetTransactionHistory(ctx context.Context, username string, limit int) ([]Transaction, error) {
	return e.store.History(ctx, username, limit)
}

// PurchaseInput carries the catalog figures handed to a purchase. The listing
// itself is not validated here; only the numbers and identities are.
type PurchaseInput struct {
	ListingID      string
	Buyer          string
	Seller         string
	AmountCents    int64
	IsAuction      bool
	TierCreditRate float64
}

// PurchaseResult reports the exact split applied by a purchase.
type PurchaseResult struct {
	TransactionID     string
	BuyerDebitCents   int64
	SellerCreditCents int64
	PlatformFeeCents  int64
}

// Purchase debits the buyer the marked-up price and splits the proceeds
// between the seller, the seller's tier credit, and the platform. The split
// conserves cents exactly: the platform credit is computed as the remainder
// of the buyer debit after the seller credit.
func (e *Engine) Purchase(ctx context.Context, input PurchaseInput) (PurchaseResult, error) {
	if input.AmountCents <= 0 {
		return PurchaseResult{}, ErrInvalidAmount
	}
	if input.TierCreditRate < 0 || input.TierCreditRate > 1 {
		return PurchaseResult{}, fmt.Errorf("%w: tier credit rate %v outside [0,1]", ErrInvalidAmount, input.TierCreditRate)
	}

	buyerKey := AccountKey{Username: input.Buyer, Role: RoleBuyer}
	sellerKey := AccountKey{Username: input.Seller, Role: RoleSeller}

	buyerDebit := input.AmountCents + input.AmountCents*e.fees.MarkupBps/bpsDenominator
	baseFee := input.AmountCents * e.fees.PlatformFeeBps / bpsDenominator
	tierCredit := input.AmountCents * int64(input.TierCreditRate*bpsDenominator) / bpsDenominator

	sellerCredit := input.AmountCents - baseFee + tierCredit
	// The tier credit never drives the platform take below its floor.
	if max := buyerDebit - e.fees.MinFeeCents; sellerCredit > max {
		sellerCredit = max
	}
	if sellerCredit < 0 {
		sellerCredit = 0
	}
	platformFee := buyerDebit - sellerCredit

	metadata := map[string]string{
		"listing_id": input.ListingID,
		"auction":    strconv.FormatBool(input.IsAuction),
		"tier_rate":  strconv.FormatFloat(input.TierCreditRate, 'f', -1, 64),
	}

	var result PurchaseResult
	err := e.apply(ctx, []AccountKey{buyerKey, sellerKey, PlatformAccount}, func(accounts map[AccountKey]Account) (Mutation, error) {
		if accounts[buyerKey].BalanceCents < buyerDebit {
			return Mutation{}, ErrInsufficientFunds
		}
		tx := Transaction{
			ID:          uuid.NewString(),
			Kind:        KindPurchase,
			Date:        e.now(),
			AmountCents: input.AmountCents,
			Status:      StatusCompleted,
			Entries: []Entry{
				{Account: buyerKey, AmountCents: -buyerDebit},
				{Account: sellerKey, AmountCents: sellerCredit},
				{Account: PlatformAccount, AmountCents: platformFee},
			},
			Metadata: metadata,
		}
		result = PurchaseResult{
			TransactionID:     tx.ID,
			BuyerDebitCents:   buyerDebit,
			SellerCreditCents: sellerCredit,
			PlatformFeeCents:  platformFee,
		}
		return Mutation{
			Deltas: []Delta{
				{Account: buyerKey, AmountCents: -buyerDebit, Version: accounts[buyerKey].Version},
				{Account: sellerKey, AmountCents: sellerCredit, Version: accounts[sellerKey].Version},
				{Account: PlatformAccount, AmountCents: platformFee, Version: accounts[PlatformAccount].Version},
			},
			Transactions: []Transaction{tx},
		}, nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	return result, nil
}

// TransferResult reports a completed two-party operation.
type TransferResult struct {
	TransactionID string
	AmountCents   int64
	FeeCents      int64
}

// Tip moves the full amount from buyer to seller with no commission.
func (e *Engine) Tip(ctx context.Context, buyer, seller string, amountCents int64) (TransferResult, error) {
	if amountCents <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}

	buyerKey := AccountKey{Username: buyer, Role: RoleBuyer}
	sellerKey := AccountKey{Username: seller, Role: RoleSeller}

	var result TransferResult
	err := e.apply(ctx, []AccountKey{buyerKey, sellerKey}, func(accounts map[AccountKey]Account) (Mutation, error) {
		if accounts[buyerKey].BalanceCents < amountCents {
			return Mutation{}, ErrInsufficientFunds
		}
		tx := Transaction{
			ID:          uuid.NewString(),
			Kind:        KindTip,
			Date:        e.now(),
			AmountCents: amountCents,
			Status:      StatusCompleted,
			Entries: []Entry{
				{Account: buyerKey, AmountCents: -amountCents},
				{Account: sellerKey, AmountCents: amountCents},
			},
		}
		result = TransferResult{TransactionID: tx.ID, AmountCents: amountCents}
		return Mutation{
			Deltas: []Delta{
				{Account: buyerKey, AmountCents: -amountCents, Version: accounts[buyerKey].Version},
				{Account: sellerKey, AmountCents: amountCents, Version: accounts[sellerKey].Version},
			},
			Transactions: []Transaction{tx},
		}, nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return result, nil
}

// Subscription transfers a recurring payment from buyer to seller with the
// platform withholding its subscription commission.
func (e *Engine) Subscription(ctx context.Context, buyer, seller string, amountCents int64) (TransferResult, error) {
	if amountCents <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}

	buyerKey := AccountKey{Username: buyer, Role: RoleBuyer}
	sellerKey := AccountKey{Username: seller, Role: RoleSeller}
	fee := amountCents * e.fees.SubscriptionFeeBps / bpsDenominator
	sellerCredit := amountCents - fee

	var result TransferResult
	err := e.apply(ctx, []AccountKey{buyerKey, sellerKey, PlatformAccount}, func(accounts map[AccountKey]Account) (Mutation, error) {
		if accounts[buyerKey].BalanceCents < amountCents {
			return Mutation{}, ErrInsufficientFunds
		}
		tx := Transaction{
			ID:          uuid.NewString(),
			Kind:        KindSubscription,
			Date:        e.now(),
			AmountCents: amountCents,
			Status:      StatusCompleted,
			Entries: []Entry{
				{Account: buyerKey, AmountCents: -amountCents},
				{Account: sellerKey, AmountCents: sellerCredit},
				{Account: PlatformAccount, AmountCents: fee},
			},
		}
		result = TransferResult{TransactionID: tx.ID, AmountCents: amountCents, FeeCents: fee}
		return Mutation{
			Deltas: []Delta{
				{Account: buyerKey, AmountCents: -amountCents, Version: accounts[buyerKey].Version},
				{Account: sellerKey, AmountCents: sellerCredit, Version: accounts[sellerKey].Version},
				{Account: PlatformAccount, AmountCents: fee, Version: accounts[PlatformAccount].Version},
			},
			Transactions: []Transaction{tx},
		}, nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return result, nil
}

// Withdraw debits the account immediately and records a pending withdrawal.
// Debiting at request time prevents double-spend through concurrent requests;
// a failed payout is compensated by FinalizeWithdrawal.
func (e *Engine) Withdraw(ctx context.Context, username string, role Role, amountCents int64) (TransferResult, error) {
	if amountCents <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}

	key := AccountKey{Username: username, Role: role}
	var result TransferResult
	err := e.apply(ctx, []AccountKey{key}, func(accounts map[AccountKey]Account) (Mutation, error) {
		if accounts[key].BalanceCents < amountCents {
			return Mutation{}, ErrInsufficientFunds
		}
		tx := Transaction{
			ID:          uuid.NewString(),
			Kind:        KindWithdrawal,
			Date:        e.now(),
			AmountCents: amountCents,
			Status:      StatusPending,
			Entries:     []Entry{{Account: key, AmountCents: -amountCents}},
		}
		result = TransferResult{TransactionID: tx.ID, AmountCents: amountCents}
		return Mutation{
			Deltas:       []Delta{{Account: key, AmountCents: -amountCents, Version: accounts[key].Version}},
			Transactions: []Transaction{tx},
		}, nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return result, nil
}

// FinalizeWithdrawal resolves a pending withdrawal. On success the record is
// marked completed; on failure the debit is reversed by a second, compensating
// transaction and the original is marked failed.
func (e *Engine) FinalizeWithdrawal(ctx context.Context, transactionID string, success bool) (Transaction, error) {
	tx, err := e.store.Transaction(ctx, transactionID)
	if err != nil {
		return Transaction{}, err
	}
	if tx.Kind != KindWithdrawal {
		return Transaction{}, fmt.Errorf("%w: transaction %s is not a withdrawal", ErrInvalidStateTransition, transactionID)
	}
	if tx.Status != StatusPending {
		return Transaction{}, fmt.Errorf("%w: withdrawal %s already %s", ErrInvalidStateTransition, transactionID, tx.Status)
	}

	if success {
		err := e.store.Apply(ctx, Mutation{
			StatusUpdates: []StatusUpdate{{TransactionID: transactionID, From: StatusPending, To: StatusCompleted}},
		})
		if err != nil {
			return Transaction{}, err
		}
		tx.Status = StatusCompleted
		return tx, nil
	}

	key := tx.Entries[0].Account
	err = e.apply(ctx, []AccountKey{key}, func(accounts map[AccountKey]Account) (Mutation, error) {
		reversal := Transaction{
			ID:          uuid.NewString(),
			Kind:        KindWithdrawal,
			Date:        e.now(),
			AmountCents: tx.AmountCents,
			Status:      StatusCompleted,
			Entries:     []Entry{{Account: key, AmountCents: tx.AmountCents}},
			Metadata:    map[string]string{"reversal_of": transactionID},
		}
		return Mutation{
			Deltas:        []Delta{{Account: key, AmountCents: tx.AmountCents, Version: accounts[key].Version}},
			StatusUpdates: []StatusUpdate{{TransactionID: transactionID, From: StatusPending, To: StatusFailed}},
			Transactions:  []Transaction{reversal},
		}, nil
	})
	if err != nil {
		return Transaction{}, err
	}
	tx.Status = StatusFailed
	return tx, nil
}

// AdjustType selects the direction of an admin adjustment.
type AdjustType string

const (
	AdjustCredit AdjustType = "credit"
	AdjustDebit  AdjustType = "debit"
)

// AdminAdjustInput is a manual balance correction, always attributed to an
// admin and justified by a reason.
type AdminAdjustInput struct {
	AdminUser   string
	TargetUser  string
	Role        Role
	AmountCents int64
	Type        AdjustType
	Reason      string
}

// AdminAdjust credits or debits an account on admin authority. The reason is
// mandatory; it is the audit trail for every manual correction.
func (e *Engine) AdminAdjust(ctx context.Context, input AdminAdjustInput) (TransferResult, error) {
	if input.Reason == "" {
		return TransferResult{}, ErrReasonRequired
	}
	if input.AmountCents <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}

	kind := KindAdminCredit
	delta := input.AmountCents
	if input.Type == AdjustDebit {
		kind = KindAdminDebit
		delta = -input.AmountCents
	} else if input.Type != AdjustCredit {
		return TransferResult{}, fmt.Errorf("%w: unknown adjustment type %q", ErrInvalidAmount, input.Type)
	}

	key := AccountKey{Username: input.TargetUser, Role: input.Role}
	var result TransferResult
	err := e.apply(ctx, []AccountKey{key}, func(accounts map[AccountKey]Account) (Mutation, error) {
		if delta < 0 && accounts[key].BalanceCents+delta < 0 {
			return Mutation{}, ErrInsufficientFunds
		}
		tx := Transaction{
			ID:          uuid.NewString(),
			Kind:        kind,
			Date:        e.now(),
			AmountCents: input.AmountCents,
			Status:      StatusCompleted,
			Entries:     []Entry{{Account: key, AmountCents: delta}},
			Metadata:    map[string]string{"admin": input.AdminUser, "reason": input.Reason},
		}
		result = TransferResult{TransactionID: tx.ID, AmountCents: input.AmountCents}
		return Mutation{
			Deltas:       []Delta{{Account: key, AmountCents: delta, Version: accounts[key].Version}},
			Transactions: []Transaction{tx},
		}, nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return result, nil
}

// DepositCreditInput credits verified external funds to a buyer. The deposit
// workflow is the only caller; it is the single path by which crypto funds
// enter the ledger.
type DepositCreditInput struct {
	Username    string
	AmountCents int64
	DepositID   string
	Currency    string
	TxHash      string
	AdminUser   string
}

// CreditDeposit applies a verified crypto deposit to the buyer's balance.
func (e *Engine) CreditDeposit(ctx context.Context, input DepositCreditInput) (TransferResult, error) {
	if input.AmountCents <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}

	key := AccountKey{Username: input.Username, Role: RoleBuyer}
	var result TransferResult
	err := e.apply(ctx, []AccountKey{key}, func(accounts map[AccountKey]Account) (Mutation, error) {
		tx := Transaction{
			ID:          uuid.NewString(),
			Kind:        KindDeposit,
			Date:        e.now(),
			AmountCents: input.AmountCents,
			Status:      StatusCompleted,
			Entries:     []Entry{{Account: key, AmountCents: input.AmountCents}},
			Metadata: map[string]string{
				"deposit_id": input.DepositID,
				"currency":   input.Currency,
				"tx_hash":    input.TxHash,
				"admin":      input.AdminUser,
			},
		}
		result = TransferResult{TransactionID: tx.ID, AmountCents: input.AmountCents}
		return Mutation{
			Deltas:       []Delta{{Account: key, AmountCents: input.AmountCents, Version: accounts[key].Version}},
			Transactions: []Transaction{tx},
		}, nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return result, nil
}

// apply runs one atomic operation: ensure the accounts exist, load a
// consistent snapshot, let build compute the mutation against it, and commit
// with version checks, retrying a bounded number of times on conflicts.
// Accounts are processed in stable key order so multi-account operations
// cannot deadlock in backends that lock rows.
func (e *Engine) apply(ctx context.Context, keys []AccountKey, build func(map[AccountKey]Account) (Mutation, error)) error {
	sorted := append([]AccountKey(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	for _, key := range sorted {
		if err := e.store.EnsureAccount(ctx, key); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= applyRetries; attempt++ {
		accounts := make(map[AccountKey]Account, len(sorted))
		for _, key := range sorted {
			acct, err := e.store.Account(ctx, key)
			if err != nil {
				return err
			}
			accounts[key] = acct
		}

		mutation, err := build(accounts)
		if err != nil {
			return err
		}
		sort.Slice(mutation.Deltas, func(i, j int) bool {
			return mutation.Deltas[i].Account.Less(mutation.Deltas[j].Account)
		})

		err = e.store.Apply(ctx, mutation)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
