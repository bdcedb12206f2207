package payout

import (
	"context"

	"github.com/google/uuid"
)

// Rail represents a connector to the external payout system that moves funds
// off-platform. Completion or failure is reported back asynchronously and
// resolved through the finalize endpoint.
type Rail interface {
	SubmitPayout(ctx context.Context, request Request) (Receipt, error)
}

// Request describes a payout handed to the rail.
type Request struct {
	WithdrawalID string
	Username     string
	AmountCents  int64
}

// Receipt captures the rail's acknowledgement of a submitted payout.
type Receipt struct {
	Reference string
	Status    string
}

// StaticRail simulates a rail that accepts every payout.
type StaticRail struct{}

// SubmitPayout acknowledges the payout with a synthetic reference.
func (StaticRail) SubmitPayout(_ context.Context, _ Request) (Receipt, error) {
	return Receipt{Reference: uuid.NewString(), Status: "accepted"}, nil
}
