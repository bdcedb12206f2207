package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidAmount occurs when an operation amount is zero, negative, or
	// outside the configured bounds.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds occurs when the debited account lacks the balance
	// to cover a requested operation.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConcurrentModification indicates a version conflict on one of the
	// accounts touched by a mutation; callers should retry.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrNotFound indicates the referenced account or transaction is unknown.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStateTransition occurs when a lifecycle operation is applied
	// to a record that is not in the expected state.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrReasonRequired occurs when an admin adjustment is submitted without
	// a justification.
	ErrReasonRequired = errors.New("reason required")
)

// Role classifies the owner of a balance account.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RolePlatform Role = "platform"
)

// ParseRole validates a role string supplied by a caller.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleBuyer, RoleSeller, RolePlatform:
		return Role(s), nil
	}
	return "", errors.New("unknown role: " + s)
}

// AccountKey identifies a balance account by owner and role.
type AccountKey struct {
	Username string
	Role     Role
}

// PlatformAccount is the single account that accumulates platform fees.
var PlatformAccount = AccountKey{Username: "platform", Role: RolePlatform}

// Less provides the stable ordering used when locking multiple accounts.
func (k AccountKey) Less(o AccountKey) bool {
	if k.Username != o.Username {
		return k.Username < o.Username
	}
	return k.Role < o.Role
}

// Account is a balance record with an optimistic-concurrency version.
type Account struct {
	Key          AccountKey
	BalanceCents int64
	Version      uint64
}

// Kind enumerates the balance-affecting event types.
type Kind string

const (
	KindPurchase     Kind = "purchase"
	KindTip          Kind = "tip"
	KindSubscription Kind = "subscription"
	KindWithdrawal   Kind = "withdrawal"
	KindDeposit      Kind = "deposit"
	KindAdminCredit  Kind = "admin_credit"
	KindAdminDebit   Kind = "admin_debit"
)

// Status tracks the lifecycle of transactions that have one. Transactions
// without a lifecycle are recorded as completed.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// Entry is a signed balance delta applied to one account as part of a
// transaction. Replaying an account's entries in order reproduces its
// balance; that is the reconciliation contract.
type Entry struct {
	Account     AccountKey
	AmountCents int64
}

// Transaction records one balance-affecting event. Only Status may change
// after append, and only for kinds with a lifecycle.
type Transaction struct {
	ID          string
	Kind        Kind
	Date        time.Time
	AmountCents int64
	Status      Status
	Entries     []Entry
	Metadata    map[string]string
}

// EntryFor returns the signed delta this transaction applied to the account,
// summed across entries.
func (t Transaction) EntryFor(key AccountKey) int64 {
	var sum int64
	for _, e := range t.Entries {
		if e.Account == key {
			sum += e.AmountCents
		}
	}
	return sum
}

// Delta is a version-checked balance mutation for one account. Version is the
// account version the delta was computed against; the store rejects the whole
// mutation when the stored version differs.
type Delta struct {
	Account     AccountKey
	AmountCents int64
	Version     uint64
}

// StatusUpdate transitions a previously appended transaction between
// lifecycle states.
type StatusUpdate struct {
	TransactionID string
	From          Status
	To            Status
}

// Mutation is the atomic unit the store commits: every delta, status update
// and appended transaction succeeds together or not at all.
type Mutation struct {
	Deltas        []Delta
	StatusUpdates []StatusUpdate
	Transactions  []Transaction
}

// Store persists balance accounts and the append-only transaction log. The
// Engine is the only writer of balance state; the audit package reads the
// log for replay.
type Store interface {
	EnsureAccount(ctx context.Context, key AccountKey) error
	Account(ctx context.Context, key AccountKey) (Account, error)
	Apply(ctx context.Context, m Mutation) error
	Transaction(ctx context.Context, id string) (Transaction, error)
	// History returns transactions touching any of the username's accounts,
	// most recent first. A limit of zero means no limit.
	History(ctx context.Context, username string, limit int) ([]Transaction, error)
	// AccountTransactions returns the transactions touching one account in
	// append order, oldest first. Reconciliation replays this sequence.
	AccountTransactions(ctx context.Context, key AccountKey) ([]Transaction, error)
}
