package rental

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vaultrent/vaultrent/internal/config"
	"github.com/vaultrent/vaultrent/internal/identity"
	"github.com/vaultrent/vaultrent/internal/logging"
	"github.com/vaultrent/vaultrent/internal/notification"
	"github.com/vaultrent/vaultrent/internal/wallet"
)

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []int64
	cancelled []int64
}

func (s *recordingScheduler) Schedule(_ context.Context, _ string, number int64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, number)
	return nil
}

func (s *recordingScheduler) Cancel(_ context.Context, number int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, number)
	return nil
}

type capturingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *capturingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *capturingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.messages))
	for _, m := range n.messages {
		out = append(out, m.Kind)
	}
	return out
}

type testEnv struct {
	svc       *Service
	wallets   wallet.Repository
	registrar *identity.Registrar
	scheduler *recordingScheduler
	notifier  *capturingNotifier
}

func newTestEnv(t *testing.T, policy string) *testEnv {
	t.Helper()
	env := &testEnv{
		wallets:   wallet.NewMemoryRepository(),
		registrar: identity.NewRegistrar(identity.NewMemoryRepository()),
		scheduler: &recordingScheduler{},
		notifier:  &capturingNotifier{},
	}
	env.svc = NewService(env.wallets, env.registrar, env.scheduler, env.notifier,
		logging.Discard(), 5*time.Minute, policy)
	return env
}

func (e *testEnv) register(t *testing.T, uids ...string) {
	t.Helper()
	for _, uid := range uids {
		if _, err := e.registrar.Register(context.Background(), uid); err != nil {
			t.Fatalf("register %s: %v", uid, err)
		}
	}
}

func TestRentMintsSequentialNumbers(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()
	env.register(t, "u1", "u2")

	first, err := env.svc.Rent(ctx, "u1")
	if err != nil {
		t.Fatalf("rent u1: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected wallet 1, got %d", first)
	}

	second, err := env.svc.Rent(ctx, "u2")
	if err != nil {
		t.Fatalf("rent u2: %v", err)
	}
	if second != 2 {
		t.Fatalf("expected wallet 2, got %d", second)
	}

	user, err := env.registrar.User(ctx, "u1")
	if err != nil {
		t.Fatalf("get u1: %v", err)
	}
	if user.RentedWallet != 1 {
		t.Fatalf("expected back-reference 1, got %d", user.RentedWallet)
	}
	if len(env.scheduler.scheduled) != 2 {
		t.Fatalf("expected 2 scheduled expirations, got %d", len(env.scheduler.scheduled))
	}
}

func TestRentReusesFreeWallet(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()
	env.register(t, "u1", "u3")

	number, err := env.svc.Rent(ctx, "u1")
	if err != nil {
		t.Fatalf("rent u1: %v", err)
	}
	if err := env.svc.ExpireLease(ctx, "u1", number); err != nil {
		t.Fatalf("expire: %v", err)
	}

	reused, err := env.svc.Rent(ctx, "u3")
	if err != nil {
		t.Fatalf("rent u3: %v", err)
	}
	if reused != number {
		t.Fatalf("expected reuse of wallet %d, got %d", number, reused)
	}

	w, err := env.wallets.GetByNumber(ctx, reused)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if !w.IsRented {
		t.Fatal("reused wallet must be rented")
	}
	if !w.RentalExpiry.After(time.Now().UTC().Add(4 * time.Minute)) {
		t.Fatal("reused wallet must carry a fresh expiry")
	}
}

func TestRentUnknownUser(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)

	if _, err := env.svc.Rent(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

type failingLinkRegistrar struct {
	Registrar
}

func (f *failingLinkRegistrar) Link(context.Context, string, int64) error {
	return errors.New("identity store unavailable")
}

func TestRentReleasesWalletWhenLinkFails(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()
	env.register(t, "u1")

	env.svc.registrar = &failingLinkRegistrar{Registrar: env.registrar}

	if _, err := env.svc.Rent(ctx, "u1"); err == nil {
		t.Fatal("expected rent to fail")
	}

	// The compensating close must leave the wallet free for the next rent.
	w, err := env.wallets.GetByNumber(ctx, 1)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.IsRented {
		t.Fatal("wallet must be released after failed link")
	}
}

func TestDepositSettlesWithinWindow(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()
	env.register(t, "u3")

	number, err := env.svc.Rent(ctx, "u3")
	if err != nil {
		t.Fatalf("rent: %v", err)
	}
	if _, err := env.wallets.AddBalance(ctx, number, 100); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	if err := env.svc.Deposit(ctx, number, 25); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	w, err := env.wallets.GetByNumber(ctx, number)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 125 {
		t.Fatalf("expected wallet balance 125, got %d", w.Balance)
	}
	if w.IsRented {
		t.Fatal("settlement must close the lease")
	}

	user, err := env.registrar.User(ctx, "u3")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Balance != 25 {
		t.Fatalf("expected user balance 25, got %d", user.Balance)
	}
	if user.HasLease() {
		t.Fatal("settlement must clear the back-reference")
	}

	if len(env.scheduler.cancelled) != 1 || env.scheduler.cancelled[0] != number {
		t.Fatalf("expected pending expiry cancelled for wallet %d", number)
	}
}

func TestDepositAfterExpiryIsStranded(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()
	env.register(t, "u1")

	number, err := env.svc.Rent(ctx, "u1")
	if err != nil {
		t.Fatalf("rent: %v", err)
	}
	if _, err := env.wallets.AddBalance(ctx, number, 50); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	// The rental window has passed but the expiry task has not fired yet.
	env.svc.now = func() time.Time { return time.Now().UTC().Add(10 * time.Minute) }

	if err := env.svc.Deposit(ctx, number, 25); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	w, err := env.wallets.GetByNumber(ctx, number)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 75 {
		t.Fatalf("expected wallet balance 75, got %d", w.Balance)
	}
	if !w.IsRented {
		t.Fatal("stranded deposit must not change lease state")
	}

	user, err := env.registrar.User(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Balance != 0 {
		t.Fatalf("stranded deposit must not credit the user, got %d", user.Balance)
	}
	if user.RentedWallet != number {
		t.Fatal("stranded deposit must not touch the back-reference")
	}
}

func TestDepositNegativeAmount(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()
	env.register(t, "u1")

	number, err := env.svc.Rent(ctx, "u1")
	if err != nil {
		t.Fatalf("rent: %v", err)
	}

	if err := env.svc.Deposit(ctx, number, -10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	w, err := env.wallets.GetByNumber(ctx, number)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 0 {
		t.Fatalf("balances must be untouched, got %d", w.Balance)
	}
	if !w.IsRented {
		t.Fatal("lease state must be untouched")
	}
}

func TestDepositZeroAmountSettles(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()
	env.register(t, "u1")

	number, err := env.svc.Rent(ctx, "u1")
	if err != nil {
		t.Fatalf("rent: %v", err)
	}

	// Zero is a valid amount: it still walks the settlement path.
	if err := env.svc.Deposit(ctx, number, 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	w, err := env.wallets.GetByNumber(ctx, number)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.IsRented {
		t.Fatal("zero deposit inside the window must still settle")
	}
}

func TestDepositUnknownWallet(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)

	if err := env.svc.Deposit(context.Background(), 99, 10); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestDepositRejectPolicy(t *testing.T) {
	env := newTestEnv(t, config.PolicyReject)
	ctx := context.Background()
	env.register(t, "u1")

	number, err := env.svc.Rent(ctx, "u1")
	if err != nil {
		t.Fatalf("rent: %v", err)
	}

	env.svc.now = func() time.Time { return time.Now().UTC().Add(10 * time.Minute) }

	if err := env.svc.Deposit(ctx, number, 25); !errors.Is(err, ErrLeaseExpired) {
		t.Fatalf("expected ErrLeaseExpired, got %v", err)
	}

	w, err := env.wallets.GetByNumber(ctx, number)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 0 {
		t.Fatalf("rejected deposit must not mutate the balance, got %d", w.Balance)
	}
}

func TestSettlementThenExpiryIsNoOp(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()
	env.register(t, "u4")

	number, err := env.svc.Rent(ctx, "u4")
	if err != nil {
		t.Fatalf("rent: %v", err)
	}
	if err := env.svc.Deposit(ctx, number, 25); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// The timer fires late: it must observe the closed lease and do nothing.
	if err := env.svc.ExpireLease(ctx, "u4", number); err != nil {
		t.Fatalf("expire: %v", err)
	}

	user, err := env.registrar.User(ctx, "u4")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Balance != 25 {
		t.Fatalf("credit must be applied exactly once, got %d", user.Balance)
	}
	if user.HasLease() {
		t.Fatal("back-reference must stay cleared")
	}
}

func TestExpiryThenDepositIsStranded(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()
	env.register(t, "u1")

	number, err := env.svc.Rent(ctx, "u1")
	if err != nil {
		t.Fatalf("rent: %v", err)
	}
	if err := env.svc.ExpireLease(ctx, "u1", number); err != nil {
		t.Fatalf("expire: %v", err)
	}

	if err := env.svc.Deposit(ctx, number, 25); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	user, err := env.registrar.User(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Balance != 0 {
		t.Fatalf("expired lease must not be credited, got %d", user.Balance)
	}

	w, err := env.wallets.GetByNumber(ctx, number)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 25 {
		t.Fatalf("expected wallet balance 25, got %d", w.Balance)
	}
}

func TestDepositReportsOrphanedWallet(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()

	// A rented wallet without a back-reference: the link write never landed.
	w, err := env.wallets.Mint(ctx, time.Now().UTC().Add(5*time.Minute))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := env.svc.Deposit(ctx, w.Number, 25); !errors.Is(err, ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}

	var reported bool
	for _, kind := range env.notifier.kinds() {
		if kind == notification.KindInconsistency {
			reported = true
		}
	}
	if !reported {
		t.Fatal("inconsistency must be reported, not swallowed")
	}
}
