package identity

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu    sync.Mutex
	users map[string]User
}

// NewMemoryRepository builds an in-memory identity store for tests and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User)}
}

func (r *memoryRepository) Put(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.UID] = user
	return nil
}

func (r *memoryRepository) Get(_ context.Context, uid string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[uid]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) Link(_ context.Context, uid string, number int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[uid]
	if !ok {
		return ErrNotFound
	}
	for _, other := range r.users {
		if other.UID != uid && other.RentedWallet == number {
			return ErrWalletTaken
		}
	}
	user.RentedWallet = number
	r.users[uid] = user
	return nil
}

func (r *memoryRepository) Unlink(_ context.Context, number int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for uid, user := range r.users {
		if user.RentedWallet == number {
			user.RentedWallet = 0
			r.users[uid] = user
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryRepository) Settle(_ context.Context, number int64, amount int64) (User, error) {
	if amount < 0 {
		return User{}, ErrNegativeAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for uid, user := range r.users {
		if user.RentedWallet == number {
			user.Balance += amount
			user.RentedWallet = 0
			r.users[uid] = user
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) FindByWallet(_ context.Context, number int64) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.RentedWallet == number {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) ListLinked(_ context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var linked []User
	for _, user := range r.users {
		if user.RentedWallet != 0 {
			linked = append(linked, user)
		}
	}
	return linked, nil
}
