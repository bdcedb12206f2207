package ledger

// SeedBalance is a test helper that sets the balance for an account when
// using the in-memory store. Versions are untouched so seeded accounts behave
// like any other.
func SeedBalance(s Store, key AccountKey, amountCents int64) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if acct, exists := mem.accounts[key]; exists {
			acct.BalanceCents = amountCents
			return
		}
		mem.accounts[key] = &Account{Key: key, BalanceCents: amountCents}
	}
}
