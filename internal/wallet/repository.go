package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no wallet exists with the requested number.
	ErrNotFound = errors.New("wallet not found")

	// ErrNoFreeWallet indicates every wallet is currently rented, so the
	// caller has to mint a new one.
	ErrNoFreeWallet = errors.New("no free wallet available")

	// ErrAlreadyClosed indicates the lease was closed before the caller's
	// compare-and-swap landed. Callers treat it as a benign no-op.
	ErrAlreadyClosed = errors.New("lease already closed")
)

// Repository persists wallets in the ledger store.
//
// Every method is a single atomic unit at the store level: concurrent Mint
// calls never hand out the same number, and exactly one of any number of
// concurrent CloseLease callers wins.
type Repository interface {
	// AcquireFree claims one wallet with is_rented = false, marking it
	// rented until expiry. Returns ErrNoFreeWallet when none is available.
	AcquireFree(ctx context.Context, expiry time.Time) (Wallet, error)
	// Mint creates a new rented wallet with the next sequence number and a
	// zero balance. Numbers are strictly increasing and never reused.
	Mint(ctx context.Context, expiry time.Time) (Wallet, error)
	GetByNumber(ctx context.Context, number int64) (Wallet, error)
	// AddBalance unconditionally adds amount to the wallet balance and
	// returns the post-add snapshot, lease state included, read in the same
	// atomic step.
	AddBalance(ctx context.Context, number int64, amount int64) (Wallet, error)
	// CloseLease flips is_rented true -> false. Returns ErrAlreadyClosed
	// when another closer got there first.
	CloseLease(ctx context.Context, number int64) error
	// ListRented returns all wallets with an open or expired-but-unclosed
	// lease, for the consistency sweep.
	ListRented(ctx context.Context) ([]Wallet, error)
}

// PostgresRepository stores wallets in the ledger PostgreSQL database.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by the ledger database.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, number, balance, is_rented, rental_expiry`

// AcquireFree claims a free wallet. SKIP LOCKED keeps concurrent renters
// from fighting over the same row.
func (r *PostgresRepository) AcquireFree(ctx context.Context, expiry time.Time) (Wallet, error) {
	row := r.db.QueryRow(ctx, `UPDATE wallets SET is_rented = TRUE, rental_expiry = $1
        WHERE id = (
            SELECT id FROM wallets WHERE NOT is_rented
            ORDER BY number LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING `+walletColumns, expiry.UTC())
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrNoFreeWallet
	}
	return w, err
}

// Mint creates a rented wallet with the next number from the wallet_numbers
// sequence. The sequence advance and the insert are one statement.
func (r *PostgresRepository) Mint(ctx context.Context, expiry time.Time) (Wallet, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO wallets (id, number, balance, is_rented, rental_expiry)
        VALUES ($1, nextval('wallet_numbers'), 0, TRUE, $2)
        RETURNING `+walletColumns, uuid.New(), expiry.UTC())
	return scanWallet(row)
}

// GetByNumber fetches a wallet by its public number.
func (r *PostgresRepository) GetByNumber(ctx context.Context, number int64) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE number = $1`, number)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrNotFound
	}
	return w, err
}

// AddBalance applies the deposit to the wallet balance regardless of lease
// state and returns the updated snapshot.
func (r *PostgresRepository) AddBalance(ctx context.Context, number int64, amount int64) (Wallet, error) {
	row := r.db.QueryRow(ctx, `UPDATE wallets SET balance = balance + $2
        WHERE number = $1
        RETURNING `+walletColumns, number, amount)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrNotFound
	}
	return w, err
}

// CloseLease performs the compare-and-swap on is_rented. The WHERE clause is
// what guarantees at most one effective close per lease.
func (r *PostgresRepository) CloseLease(ctx context.Context, number int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE wallets SET is_rented = FALSE
        WHERE number = $1 AND is_rented`, number)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE number = $1)`, number).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyClosed
}

// ListRented returns every wallet currently marked rented.
func (r *PostgresRepository) ListRented(ctx context.Context) ([]Wallet, error) {
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE is_rented ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w      Wallet
		id     uuid.UUID
		expiry *time.Time
	)
	if err := row.Scan(&id, &w.Number, &w.Balance, &w.IsRented, &expiry); err != nil {
		return Wallet{}, err
	}
	w.ID = id.String()
	if expiry != nil {
		w.RentalExpiry = expiry.UTC()
	}
	if w.IsRented && expiry == nil {
		return Wallet{}, fmt.Errorf("wallet %d rented without expiry", w.Number)
	}
	return w, nil
}
