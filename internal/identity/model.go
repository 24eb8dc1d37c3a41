package identity

import "time"

// User is a registered account holder in the identity store. RentedWallet is
// the only pointer from identity data to ledger data; zero means no active
// lease. The wallet record never stores the uid, keeping the two stores
// uncorrelatable from either side alone.
type User struct {
	UID          string
	Balance      int64
	RentedWallet int64
	CreatedAt    time.Time
}

// HasLease reports whether the user currently references a rented wallet.
func (u User) HasLease() bool {
	return u.RentedWallet != 0
}
