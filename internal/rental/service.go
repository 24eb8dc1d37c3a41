package rental

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/vaultrent/vaultrent/internal/config"
	"github.com/vaultrent/vaultrent/internal/identity"
	"github.com/vaultrent/vaultrent/internal/metrics"
	"github.com/vaultrent/vaultrent/internal/notification"
	"github.com/vaultrent/vaultrent/internal/wallet"
)

// Registrar is the slice of the identity service the rental protocol needs.
// *identity.Registrar satisfies it.
type Registrar interface {
	User(ctx context.Context, uid string) (identity.User, error)
	Link(ctx context.Context, uid string, number int64) error
	Unlink(ctx context.Context, number int64) error
	Settle(ctx context.Context, number int64, amount int64) (identity.User, error)
	UserByWallet(ctx context.Context, number int64) (identity.User, error)
	Linked(ctx context.Context) ([]identity.User, error)
}

// Service implements the lease allocation and cross-store settlement
// protocol: wallet acquisition/reuse, time-bounded lease expiry, and the
// deposit-reconciliation rule deciding whether a deposit is attributed to the
// renting user or left stranded on the wallet.
type Service struct {
	wallets   wallet.Repository
	registrar Registrar
	scheduler ExpiryScheduler
	notifier  notification.Notifier
	logger    *slog.Logger

	leaseDuration time.Duration
	policy        string

	now func() time.Time
}

// NewService constructs the rental service. policy is one of the
// config.Policy* values and governs out-of-window deposits.
func NewService(
	wallets wallet.Repository,
	registrar Registrar,
	scheduler ExpiryScheduler,
	notifier notification.Notifier,
	logger *slog.Logger,
	leaseDuration time.Duration,
	policy string,
) *Service {
	return &Service{
		wallets:       wallets,
		registrar:     registrar,
		scheduler:     scheduler,
		notifier:      notifier,
		logger:        logger,
		leaseDuration: leaseDuration,
		policy:        policy,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Rent grants uid a lease on a wallet for the configured duration and
// returns the wallet number, the only identifier ever exposed to callers.
// Free wallets are reused before new ones are minted.
func (s *Service) Rent(ctx context.Context, uid string) (int64, error) {
	if _, err := s.registrar.User(ctx, uid); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("look up user: %w", err)
	}

	expiry := s.now().Add(s.leaseDuration)
	source := metrics.SourceReused

	w, err := s.wallets.AcquireFree(ctx, expiry)
	if errors.Is(err, wallet.ErrNoFreeWallet) {
		w, err = s.wallets.Mint(ctx, expiry)
		source = metrics.SourceMinted
	}
	if err != nil {
		return 0, fmt.Errorf("acquire wallet: %w", err)
	}

	if err := s.registrar.Link(ctx, uid, w.Number); err != nil {
		// The wallet is already marked rented. Release it so it does not
		// stay leased without any user referencing it; if even that fails
		// the stores are inconsistent and must be reported.
		if cerr := s.wallets.CloseLease(ctx, w.Number); cerr != nil && !errors.Is(cerr, wallet.ErrAlreadyClosed) {
			s.reportInconsistency(ctx, w.Number,
				fmt.Sprintf("wallet %d rented but unreachable from any user: link failed (%v), release failed (%v)", w.Number, err, cerr))
		}
		if errors.Is(err, identity.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("link wallet %d to user: %w", w.Number, err)
	}

	if s.scheduler != nil {
		if err := s.scheduler.Schedule(ctx, uid, w.Number, s.leaseDuration); err != nil {
			// The lease stands; the consistency sweep closes it if the
			// timer never fires.
			s.logger.Warn("schedule lease expiry",
				slog.String("uid", uid),
				slog.Int64("wallet_number", w.Number),
				slog.Any("error", err),
			)
		}
	}

	metrics.RecordRental(source)
	s.logger.Info("wallet rented",
		slog.String("uid", uid),
		slog.Int64("wallet_number", w.Number),
		slog.Time("rental_expiry", w.RentalExpiry),
		slog.String("source", source),
	)
	return w.Number, nil
}

// Deposit applies amount to the wallet balance and, iff the lease is still
// open, settles it: the linked user is credited, the lease closed, and the
// back-reference cleared. Out-of-window deposits follow the configured
// stranded-funds policy. Deposits are not deduplicated here; transport-level
// idempotency is the caller's concern.
func (s *Service) Deposit(ctx context.Context, number int64, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}

	if s.policy == config.PolicyReject {
		w, err := s.wallets.GetByNumber(ctx, number)
		if err != nil {
			if errors.Is(err, wallet.ErrNotFound) {
				return ErrWalletNotFound
			}
			return fmt.Errorf("look up wallet: %w", err)
		}
		if !w.LeaseOpen(s.now()) {
			metrics.RecordDeposit(metrics.OutcomeRejected)
			return ErrLeaseExpired
		}
	}

	snap, err := s.wallets.AddBalance(ctx, number, amount)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return ErrWalletNotFound
		}
		return fmt.Errorf("add balance: %w", err)
	}

	if !snap.LeaseOpen(s.now()) {
		// Stranded: the funds stay on the wallet, unattributed to any user.
		metrics.RecordDeposit(metrics.OutcomeStranded)
		s.logger.Info("deposit retained on wallet",
			slog.Int64("wallet_number", number),
			slog.Int64("amount", amount),
			slog.Int64("balance", snap.Balance),
			slog.Bool("was_rented", snap.IsRented),
		)
		return nil
	}

	// Early settlement. The compare-and-swap on is_rented decides the race
	// against the expiry path: exactly one of the two performs the credit
	// and back-reference clear.
	if err := s.wallets.CloseLease(ctx, number); err != nil {
		if errors.Is(err, wallet.ErrAlreadyClosed) || errors.Is(err, wallet.ErrNotFound) {
			metrics.RecordDeposit(metrics.OutcomeRaceLost)
			s.logger.Debug("lease closed concurrently, deposit stays on wallet",
				slog.Int64("wallet_number", number))
			return nil
		}
		return fmt.Errorf("close lease: %w", err)
	}

	if s.scheduler != nil {
		if err := s.scheduler.Cancel(ctx, number); err != nil {
			// Harmless: the pending task re-checks is_rented when it fires.
			s.logger.Debug("cancel expiry task", slog.Int64("wallet_number", number), slog.Any("error", err))
		}
	}

	user, err := s.registrar.Settle(ctx, number, amount)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			s.reportInconsistency(ctx, number,
				fmt.Sprintf("wallet %d was rented but no user references it; deposit of %d left on wallet", number, amount))
			return ErrInconsistent
		}
		return fmt.Errorf("settle deposit: %w", err)
	}

	metrics.RecordDeposit(metrics.OutcomeSettled)
	metrics.RecordLeaseClosure(metrics.PathSettlement)
	s.logger.Info("deposit settled",
		slog.Int64("wallet_number", number),
		slog.Int64("amount", amount),
		slog.String("uid", user.UID),
		slog.Int64("user_balance", user.Balance),
	)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindSettlement,
		Destination: user.UID,
		Body:        fmt.Sprintf("Deposit of %d settled from wallet %d", amount, number),
	})
	return nil
}

// ExpireLease is the scheduler's firing path: it closes the lease if it is
// still open and clears the back-reference. A lease already settled by a
// deposit is the expected common case and a no-op.
func (s *Service) ExpireLease(ctx context.Context, uid string, number int64) error {
	return s.expire(ctx, uid, number, metrics.PathExpiry)
}

func (s *Service) expire(ctx context.Context, uid string, number int64, path string) error {
	err := s.wallets.CloseLease(ctx, number)
	switch {
	case errors.Is(err, wallet.ErrNotFound):
		return nil
	case errors.Is(err, wallet.ErrAlreadyClosed):
		s.logger.Debug("lease already closed before expiry",
			slog.String("uid", uid),
			slog.Int64("wallet_number", number),
		)
		return nil
	case err != nil:
		return fmt.Errorf("close lease: %w", err)
	}

	metrics.RecordLeaseClosure(path)
	s.logger.Info("lease expired",
		slog.String("uid", uid),
		slog.Int64("wallet_number", number),
	)

	if err := s.registrar.Unlink(ctx, number); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			// The link write may never have landed; the wallet itself is
			// closed, so nothing is leaked.
			s.logger.Warn("no back-reference to clear on expiry",
				slog.String("uid", uid),
				slog.Int64("wallet_number", number),
			)
			return nil
		}
		s.reportInconsistency(ctx, number,
			fmt.Sprintf("lease on wallet %d expired but back-reference could not be cleared: %v", number, err))
		return fmt.Errorf("unlink wallet %d: %w", number, err)
	}

	s.notify(ctx, notification.Message{
		Kind:        notification.KindLeaseExpired,
		Destination: uid,
		Body:        fmt.Sprintf("Lease on wallet %d expired", number),
	})
	return nil
}

func (s *Service) reportInconsistency(ctx context.Context, number int64, detail string) {
	metrics.RecordInconsistency()
	s.logger.Error("store inconsistency detected",
		slog.Int64("wallet_number", number),
		slog.String("detail", detail),
	)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindInconsistency,
		Destination: strconv.FormatInt(number, 10),
		Body:        detail,
	})
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("send notification", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}
