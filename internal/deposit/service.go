package deposit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stallpay/stallpay/internal/ledger"
	"github.com/stallpay/stallpay/internal/notification"
)

// Tolerance band around the quoted USD amount. A verify request outside
// [quote*(1-band), quote*(1+band)] is refused so large discrepancies go
// through escalation instead of a single admin's attestation.
const toleranceBandBps = 2_500

// Config bounds deposit creation.
type Config struct {
	MinAmountCents int64
	MaxAmountCents int64
	TTL            time.Duration
}

// DefaultConfig returns the production deposit bounds: $10 to $10,000,
// 30 minute expiry.
func DefaultConfig() Config {
	return Config{
		MinAmountCents: 1_000,
		MaxAmountCents: 1_000_000,
		TTL:            30 * time.Minute,
	}
}

// Service drives the deposit state machine. On-chain verification cannot be
// automated inside this trust boundary, so every credit passes through an
// admin attestation between "user claims to have paid" and "ledger credits".
type Service struct {
	repo      Repository
	rates     RateSource
	addresses AddressSource
	engine    *ledger.Engine
	notifier  notification.Notifier
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the deposit workflow. Nil rate and address sources
// default to the static stubs.
func NewService(repo Repository, rates RateSource, addresses AddressSource, engine *ledger.Engine, notifier notification.Notifier, cfg Config, logger *slog.Logger) *Service {
	if rates == nil {
		rates = DefaultRates()
	}
	if addresses == nil {
		addresses = StaticAddressSource{}
	}
	return &Service{
		repo:      repo,
		rates:     rates,
		addresses: addresses,
		engine:    engine,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create quotes a rate, allocates a receiving address, and opens a pending
// deposit with a time-boxed expiry.
func (s *Service) Create(ctx context.Context, username string, amountCents int64, currency string) (Deposit, error) {
	if amountCents < s.cfg.MinAmountCents || amountCents > s.cfg.MaxAmountCents {
		return Deposit{}, fmt.Errorf("%w: amount %d outside [%d, %d]",
			ledger.ErrInvalidAmount, amountCents, s.cfg.MinAmountCents, s.cfg.MaxAmountCents)
	}

	currency = strings.ToUpper(currency)
	rate, err := s.rates.QuoteUSD(ctx, currency)
	if err != nil {
		return Deposit{}, fmt.Errorf("quote rate: %w", err)
	}
	address, err := s.addresses.Address(ctx, currency)
	if err != nil {
		return Deposit{}, fmt.Errorf("allocate address: %w", err)
	}

	now := s.now()
	d := Deposit{
		ID:                   uuid.NewString(),
		Username:             username,
		AmountCents:          amountCents,
		Currency:             currency,
		QuotedRate:           rate,
		ExpectedCryptoAmount: decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(100)).DivRound(rate, 8),
		WalletAddress:        address,
		Status:               StatusPending,
		CreatedAt:            now,
		ExpiresAt:            now.Add(s.cfg.TTL),
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return Deposit{}, err
	}
	return d, nil
}

// Get returns the deposit, applying lazy expiry first.
func (s *Service) Get(ctx context.Context, id string) (Deposit, error) {
	return s.load(ctx, id)
}

// Queue lists deposits in one lifecycle state for the admin review queue.
func (s *Service) Queue(ctx context.Context, status Status) ([]Deposit, error) {
	return s.repo.ListByStatus(ctx, status)
}

// AttachTxHash records the depositor's claimed on-chain transaction and moves
// the deposit to confirming. Re-attaching while confirming overwrites the
// hash without a state change.
func (s *Service) AttachTxHash(ctx context.Context, id, hash string) (Deposit, error) {
	if hash == "" {
		return Deposit{}, fmt.Errorf("%w: empty transaction hash", ledger.ErrInvalidStateTransition)
	}

	d, err := s.load(ctx, id)
	if err != nil {
		return Deposit{}, err
	}

	switch d.Status {
	case StatusPending:
		d.TxHash = hash
		d.Status = StatusConfirming
		return s.repo.Update(ctx, d)
	case StatusConfirming:
		if d.TxHash == hash {
			return d, nil
		}
		d.TxHash = hash
		return s.repo.Update(ctx, d)
	default:
		return Deposit{}, fmt.Errorf("%w: cannot attach hash to %s deposit", ledger.ErrInvalidStateTransition, d.Status)
	}
}

// AdminVerify attests to the on-chain amount and credits the buyer. The
// deposit is moved to completed before the credit so a concurrent admin loses
// the version race and can never produce a second credit.
func (s *Service) AdminVerify(ctx context.Context, id, adminUser string, verifiedAmountCents int64, notes string) (Deposit, error) {
	if verifiedAmountCents <= 0 {
		return Deposit{}, ledger.ErrInvalidAmount
	}

	d, err := s.load(ctx, id)
	if err != nil {
		return Deposit{}, err
	}
	if !CanTransition(d.Status, StatusCompleted) {
		return Deposit{}, fmt.Errorf("%w: cannot verify %s deposit", ledger.ErrInvalidStateTransition, d.Status)
	}
	if outsideTolerance(d.AmountCents, verifiedAmountCents) {
		return Deposit{}, fmt.Errorf("%w: verified %d vs quoted %d", ErrAmountOutOfTolerance, verifiedAmountCents, d.AmountCents)
	}

	d.Status = StatusCompleted
	d.VerifiedAmountCents = verifiedAmountCents
	d.Notes = notes
	updated, err := s.repo.Update(ctx, d)
	if err != nil {
		return Deposit{}, err
	}

	if _, err := s.engine.CreditDeposit(ctx, ledger.DepositCreditInput{
		Username:    updated.Username,
		AmountCents: verifiedAmountCents,
		DepositID:   updated.ID,
		Currency:    updated.Currency,
		TxHash:      updated.TxHash,
		AdminUser:   adminUser,
	}); err != nil {
		// The deposit already reads completed; roll it back so the credit can
		// be retried. If even the rollback fails the record and ledger
		// disagree, which must be surfaced loudly.
		updated.Status = StatusConfirming
		updated.VerifiedAmountCents = 0
		updated.Notes = ""
		if _, revertErr := s.repo.Update(ctx, updated); revertErr != nil {
			s.logger.Error("deposit marked completed but credit failed and rollback failed",
				"deposit_id", updated.ID, "credit_error", err, "rollback_error", revertErr)
			return Deposit{}, fmt.Errorf("credit deposit %s: %v (rollback failed: %w)", updated.ID, err, revertErr)
		}
		return Deposit{}, fmt.Errorf("credit deposit %s: %w", updated.ID, err)
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Event{
			Kind:        notification.KindDepositCompleted,
			Destination: updated.Username,
			Body:        fmt.Sprintf("Deposit %s verified: %d cents credited", updated.ID, verifiedAmountCents),
		})
	}
	return updated, nil
}

// AdminReject closes a confirming deposit without credit. The reason is
// mandatory and is shown to the depositor.
func (s *Service) AdminReject(ctx context.Context, id, adminUser, reason string) (Deposit, error) {
	if strings.TrimSpace(reason) == "" {
		return Deposit{}, ledger.ErrReasonRequired
	}

	d, err := s.load(ctx, id)
	if err != nil {
		return Deposit{}, err
	}
	if !CanTransition(d.Status, StatusRejected) {
		return Deposit{}, fmt.Errorf("%w: cannot reject %s deposit", ledger.ErrInvalidStateTransition, d.Status)
	}

	d.Status = StatusRejected
	d.RejectReason = reason
	d.Notes = "rejected by " + adminUser
	updated, err := s.repo.Update(ctx, d)
	if err != nil {
		return Deposit{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Event{
			Kind:        notification.KindDepositRejected,
			Destination: updated.Username,
			Body:        fmt.Sprintf("Deposit %s rejected: %s", updated.ID, reason),
		})
	}
	return updated, nil
}

// ExpirePending sweeps pending deposits past their expiry. Expiry only ever
// applies from pending, so a deposit resolved between listing and update is
// left alone by the version check.
func (s *Service) ExpirePending(ctx context.Context) (int, error) {
	pending, err := s.repo.ListByStatus(ctx, StatusPending)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, d := range pending {
		if !s.expiredNow(d) {
			continue
		}
		d.Status = StatusExpired
		if _, err := s.repo.Update(ctx, d); err == nil {
			expired++
		}
	}
	return expired, nil
}

// load fetches the deposit and applies the lazy pending → expired transition.
func (s *Service) load(ctx context.Context, id string) (Deposit, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Deposit{}, err
	}
	if s.expiredNow(d) {
		d.Status = StatusExpired
		updated, err := s.repo.Update(ctx, d)
		if err != nil {
			// Lost a race with another transition; re-read.
			return s.repo.Get(ctx, id)
		}
		return updated, nil
	}
	return d, nil
}

func (s *Service) expiredNow(d Deposit) bool {
	return d.Status == StatusPending && d.TxHash == "" && s.now().After(d.ExpiresAt)
}

func outsideTolerance(quotedCents, verifiedCents int64) bool {
	band := quotedCents * toleranceBandBps / 10_000
	return verifiedCents < quotedCents-band || verifiedCents > quotedCents+band
}
