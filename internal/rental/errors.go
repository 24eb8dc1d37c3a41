package rental

import "errors"

var (
	// ErrInvalidAmount rejects negative deposit amounts before any store access.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUserNotFound indicates the rental request named an unregistered uid.
	ErrUserNotFound = errors.New("user not found")

	// ErrWalletNotFound indicates a deposit targeted a wallet number that
	// was never minted.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrLeaseExpired is returned by the reject stranded-funds policy when a
	// deposit arrives outside the rental window.
	ErrLeaseExpired = errors.New("lease expired")

	// ErrInconsistent indicates the ledger and identity stores disagree, for
	// example a rented wallet that no user references. The condition is
	// reported for out-of-band repair, never swallowed.
	ErrInconsistent = errors.New("ledger and identity stores inconsistent")
)
