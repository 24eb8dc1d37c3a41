package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu      sync.Mutex
	wallets map[int64]Wallet
	next    int64
}

// NewMemoryRepository constructs an in-memory ledger store for tests and dev
// mode. The single mutex stands in for the store's atomic update semantics.
func NewMemoryRepository() Repository {
	return &memoryRepository{wallets: make(map[int64]Wallet), next: 1}
}

func (r *memoryRepository) AcquireFree(_ context.Context, expiry time.Time) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Lowest number first, matching the Postgres ordering.
	var best int64 = -1
	for number, w := range r.wallets {
		if w.IsRented {
			continue
		}
		if best == -1 || number < best {
			best = number
		}
	}
	if best == -1 {
		return Wallet{}, ErrNoFreeWallet
	}

	w := r.wallets[best]
	w.IsRented = true
	w.RentalExpiry = expiry.UTC()
	r.wallets[best] = w
	return w, nil
}

func (r *memoryRepository) Mint(_ context.Context, expiry time.Time) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := Wallet{
		ID:           uuid.NewString(),
		Number:       r.next,
		Balance:      0,
		IsRented:     true,
		RentalExpiry: expiry.UTC(),
	}
	r.next++
	r.wallets[w.Number] = w
	return w, nil
}

func (r *memoryRepository) GetByNumber(_ context.Context, number int64) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[number]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (r *memoryRepository) AddBalance(_ context.Context, number int64, amount int64) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[number]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	w.Balance += amount
	r.wallets[number] = w
	return w, nil
}

func (r *memoryRepository) CloseLease(_ context.Context, number int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[number]
	if !ok {
		return ErrNotFound
	}
	if !w.IsRented {
		return ErrAlreadyClosed
	}
	w.IsRented = false
	r.wallets[number] = w
	return nil
}

func (r *memoryRepository) ListRented(_ context.Context) ([]Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rented []Wallet
	for _, w := range r.wallets {
		if w.IsRented {
			rented = append(rented, w)
		}
	}
	return rented, nil
}
