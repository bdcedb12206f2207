package deposit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stallpay/stallpay/internal/ledger"
)

// Repository persists deposit records. Update is a compare-and-swap on the
// record version so no two admins can act on the same deposit concurrently.
type Repository interface {
	Create(ctx context.Context, d Deposit) error
	Get(ctx context.Context, id string) (Deposit, error)
	Update(ctx context.Context, d Deposit) (Deposit, error)
	ListByStatus(ctx context.Context, status Status) ([]Deposit, error)
}

// PostgresRepository stores deposits in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a deposit repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a deposit record.
func (r *PostgresRepository) Create(ctx context.Context, d Deposit) error {
	_, err := r.db.Exec(ctx, `INSERT INTO deposits
        (id, username, amount_cents, currency, quoted_rate, expected_crypto_amount,
         wallet_address, tx_hash, status, created_at, expires_at,
         verified_amount_cents, notes, reject_reason, version)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, d.Username, d.AmountCents, d.Currency, d.QuotedRate.String(),
		d.ExpectedCryptoAmount.String(), d.WalletAddress, d.TxHash, d.Status,
		d.CreatedAt.UTC(), d.ExpiresAt.UTC(), d.VerifiedAmountCents, d.Notes,
		d.RejectReason, d.Version)
	return err
}

// Get fetches a deposit by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Deposit, error) {
	row := r.db.QueryRow(ctx, `SELECT id, username, amount_cents, currency, quoted_rate,
        expected_crypto_amount, wallet_address, tx_hash, status, created_at, expires_at,
        verified_amount_cents, notes, reject_reason, version
        FROM deposits WHERE id = $1`, id)
	d, err := scanDeposit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Deposit{}, ledger.ErrNotFound
	}
	return d, err
}

// Update persists the record if its stored version still matches; the version
// is bumped on success.
func (r *PostgresRepository) Update(ctx context.Context, d Deposit) (Deposit, error) {
	tag, err := r.db.Exec(ctx, `UPDATE deposits SET
        tx_hash = $1, status = $2, verified_amount_cents = $3, notes = $4,
        reject_reason = $5, version = version + 1
        WHERE id = $6 AND version = $7`,
		d.TxHash, d.Status, d.VerifiedAmountCents, d.Notes, d.RejectReason, d.ID, d.Version)
	if err != nil {
		return Deposit{}, err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, d.ID); errors.Is(getErr, ledger.ErrNotFound) {
			return Deposit{}, ledger.ErrNotFound
		}
		return Deposit{}, ledger.ErrConcurrentModification
	}
	d.Version++
	return d, nil
}

// ListByStatus returns the admin queue for a lifecycle state, oldest first.
func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status) ([]Deposit, error) {
	rows, err := r.db.Query(ctx, `SELECT id, username, amount_cents, currency, quoted_rate,
        expected_crypto_amount, wallet_address, tx_hash, status, created_at, expires_at,
        verified_amount_cents, notes, reject_reason, version
        FROM deposits WHERE status = $1 ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDeposit(row pgx.Row) (Deposit, error) {
	var d Deposit
	var quotedRate, expectedAmount string
	var createdAt, expiresAt time.Time
	if err := row.Scan(&d.ID, &d.Username, &d.AmountCents, &d.Currency, &quotedRate,
		&expectedAmount, &d.WalletAddress, &d.TxHash, &d.Status, &createdAt, &expiresAt,
		&d.VerifiedAmountCents, &d.Notes, &d.RejectReason, &d.Version); err != nil {
		return Deposit{}, err
	}
	var err error
	if d.QuotedRate, err = decimal.NewFromString(quotedRate); err != nil {
		return Deposit{}, err
	}
	if d.ExpectedCryptoAmount, err = decimal.NewFromString(expectedAmount); err != nil {
		return Deposit{}, err
	}
	d.CreatedAt = createdAt.UTC()
	d.ExpiresAt = expiresAt.UTC()
	return d, nil
}
