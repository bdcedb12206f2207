package payout

import (
	"context"
	"fmt"

	"github.com/stallpay/stallpay/internal/ledger"
	"github.com/stallpay/stallpay/internal/notification"
)

// Service coordinates the withdrawal lifecycle: funds are debited at request
// time, the payout is handed to the rail, and the rail's eventual outcome is
// applied through Finalize.
type Service struct {
	engine   *ledger.Engine
	rail     Rail
	notifier notification.Notifier
}

// NewService constructs the payout service. A nil rail defaults to the static
// stub.
func NewService(engine *ledger.Engine, rail Rail, notifier notification.Notifier) *Service {
	if rail == nil {
		rail = StaticRail{}
	}
	return &Service{engine: engine, rail: rail, notifier: notifier}
}

// Result reports a submitted withdrawal.
type Result struct {
	WithdrawalID  string
	AmountCents   int64
	RailReference string
}

// Request debits the account and submits the payout. A rail submission
// failure immediately reverses the debit so no funds stay parked against a
// payout that never left.
func (s *Service) Request(ctx context.Context, username string, role ledger.Role, amountCents int64) (Result, error) {
	withdrawal, err := s.engine.Withdraw(ctx, username, role, amountCents)
	if err != nil {
		return Result{}, err
	}

	receipt, err := s.rail.SubmitPayout(ctx, Request{
		WithdrawalID: withdrawal.TransactionID,
		Username:     username,
		AmountCents:  amountCents,
	})
	if err != nil {
		if _, finalizeErr := s.engine.FinalizeWithdrawal(ctx, withdrawal.TransactionID, false); finalizeErr != nil {
			return Result{}, fmt.Errorf("submit payout: %v; reverse debit: %w", err, finalizeErr)
		}
		return Result{}, fmt.Errorf("submit payout: %w", err)
	}

	return Result{
		WithdrawalID:  withdrawal.TransactionID,
		AmountCents:   amountCents,
		RailReference: receipt.Reference,
	}, nil
}

// Finalize applies the rail's reported outcome: completed on success, failed
// plus a compensating credit otherwise.
func (s *Service) Finalize(ctx context.Context, withdrawalID string, success bool) (ledger.Transaction, error) {
	tx, err := s.engine.FinalizeWithdrawal(ctx, withdrawalID, success)
	if err != nil {
		return ledger.Transaction{}, err
	}

	if s.notifier != nil && len(tx.Entries) > 0 {
		outcome := "completed"
		if !success {
			outcome = "failed; funds returned"
		}
		_ = s.notifier.Send(ctx, notification.Event{
			Kind:        notification.KindWithdrawalResolved,
			Destination: tx.Entries[0].Account.Username,
			Body:        fmt.Sprintf("Withdrawal of %d cents %s", tx.AmountCents, outcome),
		})
	}
	return tx, nil
}
