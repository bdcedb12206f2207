package ledger

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_ApplyIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a := AccountKey{Username: "alice", Role: RoleBuyer}
	b := AccountKey{Username: "bob", Role: RoleSeller}
	if err := s.EnsureAccount(ctx, a); err != nil {
		t.Fatalf("ensure account a: %v", err)
	}
	if err := s.EnsureAccount(ctx, b); err != nil {
		t.Fatalf("ensure account b: %v", err)
	}

	// Stale version on the second delta must reject the whole mutation.
	err := s.Apply(ctx, Mutation{
		Deltas: []Delta{
			{Account: a, AmountCents: 500, Version: 0},
			{Account: b, AmountCents: -500, Version: 7},
		},
	})
	if err != ErrConcurrentModification {
		t.Fatalf("expected concurrent modification, got %v", err)
	}

	acct, err := s.Account(ctx, a)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	if acct.BalanceCents != 0 || acct.Version != 0 {
		t.Fatalf("partial application: %+v", acct)
	}
}

func TestMemoryStore_VersionIncrements(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	key := AccountKey{Username: "alice", Role: RoleBuyer}
	s.EnsureAccount(ctx, key)

	if err := s.Apply(ctx, Mutation{Deltas: []Delta{{Account: key, AmountCents: 100, Version: 0}}}); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := s.Apply(ctx, Mutation{Deltas: []Delta{{Account: key, AmountCents: 100, Version: 0}}}); err != ErrConcurrentModification {
		t.Fatalf("expected stale version rejection, got %v", err)
	}
	if err := s.Apply(ctx, Mutation{Deltas: []Delta{{Account: key, AmountCents: 100, Version: 1}}}); err != nil {
		t.Fatalf("apply at current version: %v", err)
	}

	acct, _ := s.Account(ctx, key)
	if acct.BalanceCents != 200 || acct.Version != 2 {
		t.Fatalf("unexpected account state: %+v", acct)
	}
}

func TestMemoryStore_StatusUpdateRequiresExpectedState(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	key := AccountKey{Username: "carol", Role: RoleSeller}
	s.EnsureAccount(ctx, key)

	tx := Transaction{
		ID:          "w-1",
		Kind:        KindWithdrawal,
		Date:        time.Now().UTC(),
		AmountCents: 100,
		Status:      StatusPending,
		Entries:     []Entry{{Account: key, AmountCents: -100}},
	}
	if err := s.Apply(ctx, Mutation{Transactions: []Transaction{tx}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.Apply(ctx, Mutation{
		StatusUpdates: []StatusUpdate{{TransactionID: "w-1", From: StatusCompleted, To: StatusFailed}},
	}); err != ErrInvalidStateTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	if err := s.Apply(ctx, Mutation{
		StatusUpdates: []StatusUpdate{{TransactionID: "w-1", From: StatusPending, To: StatusCompleted}},
	}); err != nil {
		t.Fatalf("valid transition: %v", err)
	}

	got, _ := s.Transaction(ctx, "w-1")
	if got.Status != StatusCompleted {
		t.Fatalf("status not updated: %s", got.Status)
	}
}

func TestMemoryStore_HistoryOrderAndFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	alice := AccountKey{Username: "alice", Role: RoleBuyer}
	bob := AccountKey{Username: "bob", Role: RoleSeller}
	s.EnsureAccount(ctx, alice)
	s.EnsureAccount(ctx, bob)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"t-1", "t-2", "t-3"} {
		tx := Transaction{
			ID:          id,
			Kind:        KindTip,
			Date:        base.Add(time.Duration(i) * time.Minute),
			AmountCents: 100,
			Status:      StatusCompleted,
			Entries: []Entry{
				{Account: alice, AmountCents: -100},
				{Account: bob, AmountCents: 100},
			},
		}
		if err := s.Apply(ctx, Mutation{Transactions: []Transaction{tx}}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	history, err := s.History(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].ID != "t-3" || history[1].ID != "t-2" {
		t.Fatalf("unexpected history: %+v", history)
	}

	replay, err := s.AccountTransactions(ctx, bob)
	if err != nil {
		t.Fatalf("account transactions: %v", err)
	}
	if len(replay) != 3 || replay[0].ID != "t-1" || replay[2].ID != "t-3" {
		t.Fatalf("replay not in append order: %+v", replay)
	}

	none, err := s.History(ctx, "nobody", 0)
	if err != nil {
		t.Fatalf("history for unknown user: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty history, got %+v", none)
	}
}
