package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/stallpay/stallpay/internal/ledger"
)

// Thresholds tune the suspicious-activity heuristics.
type Thresholds struct {
	// LargeCreditCents marks a credit big enough to watch for an immediate
	// drain.
	LargeCreditCents int64
	// DrainWindow is how soon after a large credit a near-total withdrawal
	// counts as a drain.
	DrainWindow time.Duration
	// DrainRatio is the withdrawal/credit ratio that counts as near-total.
	DrainRatio float64
	// VelocityCount transactions inside VelocityWindow trip the velocity
	// heuristic.
	VelocityCount  int
	VelocityWindow time.Duration
	// RoundPairWindow is the span in which a matched round-number deposit
	// and withdrawal look like ledger probing.
	RoundPairWindow time.Duration
	// HistoryLimit caps how much history is scanned.
	HistoryLimit int
}

// DefaultThresholds returns the production heuristic tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LargeCreditCents: 10_000,
		DrainWindow:      time.Hour,
		DrainRatio:       0.9,
		VelocityCount:    10,
		VelocityWindow:   10 * time.Minute,
		RoundPairWindow:  24 * time.Hour,
		HistoryLimit:     100,
	}
}

// Report is the advisory outcome of a suspicion scan. It flags an account for
// human review; it never blocks an operation.
type Report struct {
	Username   string
	Suspicious bool
	Reasons    []string
}

// Detector scans recent transaction history for abuse patterns.
type Detector struct {
	store      ledger.Store
	thresholds Thresholds
}

// NewDetector builds a detector over the ledger store.
func NewDetector(store ledger.Store, thresholds Thresholds) *Detector {
	return &Detector{store: store, thresholds: thresholds}
}

// CheckSuspiciousActivity evaluates the heuristics over the user's recent
// transactions.
func (d *Detector) CheckSuspiciousActivity(ctx context.Context, username string) (Report, error) {
	history, err := d.store.History(ctx, username, d.thresholds.HistoryLimit)
	if err != nil {
		return Report{}, err
	}

	// History arrives most recent first; scan oldest first.
	transactions := make([]ledger.Transaction, len(history))
	for i, tx := range history {
		transactions[len(history)-1-i] = tx
	}

	report := Report{Username: username}
	report.Reasons = append(report.Reasons, d.drainAfterCredit(username, transactions)...)
	report.Reasons = append(report.Reasons, d.burstVelocity(transactions)...)
	report.Reasons = append(report.Reasons, d.roundNumberPairs(transactions)...)
	report.Suspicious = len(report.Reasons) > 0
	return report, nil
}

// drainAfterCredit flags withdrawals that pull out nearly all of a large
// credit received shortly before.
func (d *Detector) drainAfterCredit(username string, transactions []ledger.Transaction) []string {
	var reasons []string
	for i, w := range transactions {
		if w.Kind != ledger.KindWithdrawal || w.AmountCents <= 0 || isReversal(w) {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			c := transactions[j]
			if w.Date.Sub(c.Date) > d.thresholds.DrainWindow {
				break
			}
			credit := creditTo(c, username)
			if credit < d.thresholds.LargeCreditCents {
				continue
			}
			if float64(w.AmountCents) >= d.thresholds.DrainRatio*float64(credit) {
				reasons = append(reasons, fmt.Sprintf(
					"withdrawal of %d cents within %s of a %d cent credit",
					w.AmountCents, d.thresholds.DrainWindow, credit))
				break
			}
		}
	}
	return reasons
}

// burstVelocity flags windows with an unusually high transaction count.
func (d *Detector) burstVelocity(transactions []ledger.Transaction) []string {
	for i := range transactions {
		j := i
		for j < len(transactions) && transactions[j].Date.Sub(transactions[i].Date) <= d.thresholds.VelocityWindow {
			j++
		}
		if j-i >= d.thresholds.VelocityCount {
			return []string{fmt.Sprintf("%d transactions within %s", j-i, d.thresholds.VelocityWindow)}
		}
	}
	return nil
}

// roundNumberPairs flags a round-number deposit matched by a withdrawal of
// the same amount, a pattern consistent with probing the ledger.
func (d *Detector) roundNumberPairs(transactions []ledger.Transaction) []string {
	var reasons []string
	for i, dep := range transactions {
		if dep.Kind != ledger.KindDeposit || dep.AmountCents%10_000 != 0 {
			continue
		}
		for _, w := range transactions[i+1:] {
			if w.Date.Sub(dep.Date) > d.thresholds.RoundPairWindow {
				break
			}
			if w.Kind == ledger.KindWithdrawal && !isReversal(w) && w.AmountCents == dep.AmountCents {
				reasons = append(reasons, fmt.Sprintf(
					"round-number deposit and withdrawal pair of %d cents", dep.AmountCents))
				break
			}
		}
	}
	return reasons
}

func creditTo(tx ledger.Transaction, username string) int64 {
	var credit int64
	for _, e := range tx.Entries {
		if e.Account.Username == username && e.AmountCents > 0 {
			credit += e.AmountCents
		}
	}
	return credit
}

func isReversal(tx ledger.Transaction) bool {
	_, ok := tx.Metadata["reversal_of"]
	return ok
}
