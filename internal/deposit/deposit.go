package deposit

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrAmountOutOfTolerance occurs when an admin attests to an on-chain amount
// too far from the quoted one; such requests are escalated, not credited.
var ErrAmountOutOfTolerance = errors.New("verified amount outside tolerance band")

// Status is the deposit lifecycle state. pending and confirming are the only
// non-terminal states; completed, rejected and expired are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirming Status = "confirming"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusExpired    Status = "expired"
)

// transitions is the only table consulted when a deposit changes state.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirming, StatusExpired},
	StatusConfirming: {StatusCompleted, StatusRejected},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Deposit is a crypto deposit awaiting human verification. External funds
// enter the ledger only through a completed deposit.
type Deposit struct {
	ID       string
	Username string
	// AmountCents is the quoted USD amount the depositor intends to fund.
	AmountCents int64
	Currency    string
	// QuotedRate is the USD price per unit of the crypto currency at
	// creation time.
	QuotedRate decimal.Decimal
	// ExpectedCryptoAmount is the on-chain amount implied by the quote.
	ExpectedCryptoAmount decimal.Decimal
	WalletAddress        string
	TxHash               string
	Status               Status
	CreatedAt            time.Time
	ExpiresAt            time.Time
	// VerifiedAmountCents is the USD value the admin attested to on
	// completion; it may differ from the quote.
	VerifiedAmountCents int64
	Notes               string
	RejectReason        string
	// Version guards against two admins acting on the same deposit.
	Version uint64
}
