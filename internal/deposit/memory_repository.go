package deposit

import (
	"context"
	"sort"
	"sync"

	"github.com/stallpay/stallpay/internal/ledger"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Deposit
}

// NewMemoryRepository constructs an in-memory deposit repository for tests
// and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Deposit)}
}

func (r *memoryRepository) Create(_ context.Context, d Deposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[d.ID]; exists {
		return ledger.ErrInvalidStateTransition
	}
	r.storage[d.ID] = d
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Deposit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.storage[id]
	if !ok {
		return Deposit{}, ledger.ErrNotFound
	}
	return d, nil
}

func (r *memoryRepository) Update(_ context.Context, d Deposit) (Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.storage[d.ID]
	if !ok {
		return Deposit{}, ledger.ErrNotFound
	}
	if current.Version != d.Version {
		return Deposit{}, ledger.ErrConcurrentModification
	}
	d.Version++
	r.storage[d.ID] = d
	return d, nil
}

func (r *memoryRepository) ListByStatus(_ context.Context, status Status) ([]Deposit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Deposit
	for _, d := range r.storage {
		if d.Status == status {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
