package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists accounts and the transaction log in PostgreSQL.
// Multi-account mutations lock account rows in the caller-provided (stable)
// delta order.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureAccount guarantees a balance row exists for the account.
func (s *PostgresStore) EnsureAccount(ctx context.Context, key AccountKey) error {
	_, err := s.db.Exec(ctx, `INSERT INTO accounts (id, username, role, balance_cents, version)
        VALUES ($1, $2, $3, 0, 0)
        ON CONFLICT (username, role) DO NOTHING`, uuid.New(), key.Username, key.Role)
	return err
}

// Account loads the current balance and version for the account.
func (s *PostgresStore) Account(ctx context.Context, key AccountKey) (Account, error) {
	const query = `SELECT balance_cents, version FROM accounts WHERE username = $1 AND role = $2`
	acct := Account{Key: key}
	if err := s.db.QueryRow(ctx, query, key.Username, key.Role).Scan(&acct.BalanceCents, &acct.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return acct, nil
}

// Apply commits a mutation in a single database transaction. The balance
// mutation and the log append share the same commit, so a committed balance
// change without its log entry cannot occur.
func (s *PostgresStore) Apply(ctx context.Context, m Mutation) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, d := range m.Deltas {
		var version uint64
		err := tx.QueryRow(ctx, `SELECT version FROM accounts WHERE username = $1 AND role = $2 FOR UPDATE`,
			d.Account.Username, d.Account.Role).Scan(&version)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if version != d.Version {
			return ErrConcurrentModification
		}
		if _, err := tx.Exec(ctx, `UPDATE accounts SET balance_cents = balance_cents + $1, version = version + 1
            WHERE username = $2 AND role = $3`, d.AmountCents, d.Account.Username, d.Account.Role); err != nil {
			return err
		}
	}

	for _, u := range m.StatusUpdates {
		tag, err := tx.Exec(ctx, `UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3`,
			u.To, u.TransactionID, u.From)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var current Status
			if err := tx.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1`, u.TransactionID).Scan(&current); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return err
			}
			return fmt.Errorf("%w: transaction %s is %s, expected %s", ErrInvalidStateTransition, u.TransactionID, current, u.From)
		}
	}

	for _, record := range m.Transactions {
		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, kind, status, amount_cents, date, metadata)
            VALUES ($1, $2, $3, $4, $5, $6)`,
			record.ID, record.Kind, record.Status, record.AmountCents, record.Date, metadata); err != nil {
			return err
		}
		for _, entry := range record.Entries {
			if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, username, role, amount_cents)
                VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), record.ID, entry.Account.Username, entry.Account.Role, entry.AmountCents); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

// Transaction loads one transaction with its entries.
func (s *PostgresStore) Transaction(ctx context.Context, id string) (Transaction, error) {
	const query = `SELECT id, kind, status, amount_cents, date, metadata FROM transactions WHERE id = $1`
	record, err := scanTransaction(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return Transaction{}, err
	}
	record.Entries, err = s.entriesFor(ctx, record.ID)
	if err != nil {
		return Transaction{}, err
	}
	return record, nil
}

// History returns transactions touching the username's accounts, most recent
// first.
func (s *PostgresStore) History(ctx context.Context, username string, limit int) ([]Transaction, error) {
	query := `SELECT DISTINCT t.id, t.kind, t.status, t.amount_cents, t.date, t.metadata
        FROM transactions t
        INNER JOIN entries e ON e.transaction_id = t.id
        WHERE ($1 = '' OR e.username = $1)
        ORDER BY t.date DESC`
	args := []any{username}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryTransactions(ctx, query, args...)
}

// AccountTransactions returns the account's transactions oldest first for
// reconciliation replay.
func (s *PostgresStore) AccountTransactions(ctx context.Context, key AccountKey) ([]Transaction, error) {
	const query = `SELECT DISTINCT t.id, t.kind, t.status, t.amount_cents, t.date, t.metadata
        FROM transactions t
        INNER JOIN entries e ON e.transaction_id = t.id
        WHERE e.username = $1 AND e.role = $2
        ORDER BY t.date ASC`
	return s.queryTransactions(ctx, query, key.Username, key.Role)
}

func (s *PostgresStore) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		entries, err := s.entriesFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Entries = entries
	}
	return out, nil
}

func (s *PostgresStore) entriesFor(ctx context.Context, transactionID string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT username, role, amount_cents FROM entries WHERE transaction_id = $1`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Account.Username, &e.Account.Role, &e.AmountCents); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var record Transaction
	var metadata []byte
	if err := row.Scan(&record.ID, &record.Kind, &record.Status, &record.AmountCents, &record.Date, &metadata); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return Transaction{}, err
		}
	}
	record.Date = record.Date.UTC()
	return record, nil
}
