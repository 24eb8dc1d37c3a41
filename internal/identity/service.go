package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Registrar manages user records and the rented_wallet back-reference on
// behalf of the rental protocol. It is the only writer of the identity store.
type Registrar struct {
	repo Repository
}

// NewRegistrar creates a registrar backed by the given repository.
func NewRegistrar(repo Repository) *Registrar {
	return &Registrar{repo: repo}
}

// Register creates the user with a zero balance and no back-reference. A
// repeat call fully overwrites the record, so registration is idempotent by
// construction (and resets any previous state, matching a full overwrite).
func (s *Registrar) Register(ctx context.Context, uid string) (User, error) {
	if uid == "" {
		return User{}, errors.New("uid is required")
	}

	user := User{
		UID:       uid,
		Balance:   0,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Put(ctx, user); err != nil {
		return User{}, fmt.Errorf("put user: %w", err)
	}
	return user, nil
}

// User fetches a user by uid.
func (s *Registrar) User(ctx context.Context, uid string) (User, error) {
	return s.repo.Get(ctx, uid)
}

// Link records that uid now holds the lease on the wallet number.
func (s *Registrar) Link(ctx context.Context, uid string, number int64) error {
	return s.repo.Link(ctx, uid, number)
}

// Unlink clears the back-reference for the wallet number, whoever holds it.
func (s *Registrar) Unlink(ctx context.Context, number int64) error {
	return s.repo.Unlink(ctx, number)
}

// Settle credits the user referencing the wallet number by amount and clears
// the back-reference in one atomic step.
func (s *Registrar) Settle(ctx context.Context, number int64, amount int64) (User, error) {
	if amount < 0 {
		return User{}, ErrNegativeAmount
	}
	return s.repo.Settle(ctx, number, amount)
}

// UserByWallet fetches the user referencing the wallet number.
func (s *Registrar) UserByWallet(ctx context.Context, number int64) (User, error) {
	return s.repo.FindByWallet(ctx, number)
}

// Linked returns every user with an active back-reference.
func (s *Registrar) Linked(ctx context.Context) ([]User, error) {
	return s.repo.ListLinked(ctx)
}
