package ledger

import (
	"context"
	"sort"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	accounts map[AccountKey]*Account
	byID     map[string]*Transaction
	log      []*Transaction
}

// NewMemoryStore creates a concurrency-safe in-memory store. It backs unit
// tests and local development without Postgres.
func NewMemoryStore() Store {
	return &memoryStore{
		accounts: make(map[AccountKey]*Account),
		byID:     make(map[string]*Transaction),
	}
}

func (s *memoryStore) EnsureAccount(_ context.Context, key AccountKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[key]; !exists {
		s.accounts[key] = &Account{Key: key}
	}
	return nil
}

func (s *memoryStore) Account(_ context.Context, key AccountKey) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[key]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *acct, nil
}

func (s *memoryStore) Apply(_ context.Context, m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything against the current state before touching it so a
	// rejected mutation leaves no partial application.
	for _, d := range m.Deltas {
		acct, ok := s.accounts[d.Account]
		if !ok {
			return ErrNotFound
		}
		if acct.Version != d.Version {
			return ErrConcurrentModification
		}
	}
	for _, u := range m.StatusUpdates {
		tx, ok := s.byID[u.TransactionID]
		if !ok {
			return ErrNotFound
		}
		if tx.Status != u.From {
			return ErrInvalidStateTransition
		}
	}
	for _, tx := range m.Transactions {
		if _, exists := s.byID[tx.ID]; exists {
			return ErrInvalidStateTransition
		}
	}

	for _, d := range m.Deltas {
		acct := s.accounts[d.Account]
		acct.BalanceCents += d.AmountCents
		acct.Version++
	}
	for _, u := range m.StatusUpdates {
		s.byID[u.TransactionID].Status = u.To
	}
	for i := range m.Transactions {
		tx := cloneTransaction(m.Transactions[i])
		s.byID[tx.ID] = tx
		s.log = append(s.log, tx)
	}
	return nil
}

func (s *memoryStore) Transaction(_ context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.byID[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return *tx, nil
}

func (s *memoryStore) History(_ context.Context, username string, limit int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transaction
	for i := len(s.log) - 1; i >= 0; i-- {
		tx := s.log[i]
		if username != "" && !touchesUser(tx, username) {
			continue
		}
		out = append(out, *tx)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) AccountTransactions(_ context.Context, key AccountKey) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transaction
	for _, tx := range s.log {
		for _, e := range tx.Entries {
			if e.Account == key {
				out = append(out, *tx)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func touchesUser(tx *Transaction, username string) bool {
	for _, e := range tx.Entries {
		if e.Account.Username == username {
			return true
		}
	}
	return false
}

func cloneTransaction(tx Transaction) *Transaction {
	cp := tx
	cp.Entries = append([]Entry(nil), tx.Entries...)
	if tx.Metadata != nil {
		cp.Metadata = make(map[string]string, len(tx.Metadata))
		for k, v := range tx.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
