package wallet

import "time"

// Wallet is a numbered record in the ledger store, leasable to one user at a
// time. The renter's identity is never stored here; the only pointer back to
// a user is the rented_wallet reference held in the identity store.
type Wallet struct {
	ID           string
	Number       int64
	Balance      int64
	IsRented     bool
	RentalExpiry time.Time
}

// LeaseOpen reports whether the wallet is rented with an unexpired lease at
// the given instant. RentalExpiry is meaningful only while IsRented is true.
func (w Wallet) LeaseOpen(now time.Time) bool {
	return w.IsRented && now.Before(w.RentalExpiry)
}
