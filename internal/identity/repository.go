package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no user matched the uid or wallet reference.
	ErrNotFound = errors.New("user not found")

	// ErrWalletTaken indicates another user already references the wallet
	// number. At most one active back-reference per wallet is enforced at
	// write time.
	ErrWalletTaken = errors.New("wallet already linked to another user")

	// ErrNegativeAmount indicates a balance update with a negative amount.
	ErrNegativeAmount = errors.New("negative amount")
)

// Repository persists users in the identity store.
type Repository interface {
	// Put fully overwrites the user record, making registration idempotent.
	Put(ctx context.Context, user User) error
	Get(ctx context.Context, uid string) (User, error)
	// Link sets the rented_wallet back-reference. Returns ErrNotFound for an
	// unknown uid and ErrWalletTaken when another user holds the number.
	Link(ctx context.Context, uid string, number int64) error
	// Unlink clears the back-reference of the user referencing number.
	// Returns ErrNotFound when no user references it.
	Unlink(ctx context.Context, number int64) error
	// Settle adds amount to the balance of the user referencing number and
	// clears the back-reference in the same atomic step.
	Settle(ctx context.Context, number int64, amount int64) (User, error)
	FindByWallet(ctx context.Context, number int64) (User, error)
	// ListLinked returns every user holding a back-reference, for the
	// consistency sweep.
	ListLinked(ctx context.Context) ([]User, error)
}

const uniqueViolation = "23505"

// PostgresRepository implements Repository using the identity PostgreSQL database.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Put upserts the full user record.
func (r *PostgresRepository) Put(ctx context.Context, user User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (uid, balance, rented_wallet, created_at)
        VALUES ($1, $2, NULLIF($3, 0), $4)
        ON CONFLICT (uid) DO UPDATE
        SET balance = EXCLUDED.balance, rented_wallet = EXCLUDED.rented_wallet`,
		user.UID, user.Balance, user.RentedWallet, user.CreatedAt.UTC())
	return err
}

// Get fetches a user by uid.
func (r *PostgresRepository) Get(ctx context.Context, uid string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT uid, balance, rented_wallet, created_at
        FROM users WHERE uid = $1`, uid)
	return scanUser(row)
}

// Link sets the back-reference. The partial unique index on rented_wallet
// turns a double-link into a constraint violation instead of a silent
// last-write-wins.
func (r *PostgresRepository) Link(ctx context.Context, uid string, number int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET rented_wallet = $2 WHERE uid = $1`, uid, number)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrWalletTaken
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Unlink clears the back-reference of whichever user references number.
func (r *PostgresRepository) Unlink(ctx context.Context, number int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET rented_wallet = NULL WHERE rented_wallet = $1`, number)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Settle credits the user referencing number and clears the reference in one
// statement, so a concurrent expiry cannot slip between the two effects.
func (r *PostgresRepository) Settle(ctx context.Context, number int64, amount int64) (User, error) {
	if amount < 0 {
		return User{}, ErrNegativeAmount
	}
	row := r.db.QueryRow(ctx, `UPDATE users
        SET balance = balance + $2, rented_wallet = NULL
        WHERE rented_wallet = $1
        RETURNING uid, balance, rented_wallet, created_at`, number, amount)
	return scanUser(row)
}

// FindByWallet fetches the user referencing the wallet number.
func (r *PostgresRepository) FindByWallet(ctx context.Context, number int64) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT uid, balance, rented_wallet, created_at
        FROM users WHERE rented_wallet = $1`, number)
	return scanUser(row)
}

// ListLinked returns all users with an active back-reference.
func (r *PostgresRepository) ListLinked(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT uid, balance, rented_wallet, created_at
        FROM users WHERE rented_wallet IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u         User
		rented    *int64
		createdAt time.Time
	)
	if err := row.Scan(&u.UID, &u.Balance, &rented, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	if rented != nil {
		u.RentedWallet = *rented
	}
	u.CreatedAt = createdAt.UTC()
	return u, nil
}
