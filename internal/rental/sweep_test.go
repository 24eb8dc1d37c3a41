package rental

import (
	"context"
	"testing"
	"time"

	"github.com/vaultrent/vaultrent/internal/config"
)

func TestSweepCleanStateFindsNothing(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()
	env.register(t, "u1")

	if _, err := env.svc.Rent(ctx, "u1"); err != nil {
		t.Fatalf("rent: %v", err)
	}

	// The lease is fresh and fully linked: nothing to flag.
	report, err := env.svc.SweepConsistency(ctx, time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !report.Empty() {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestSweepFlagsOrphanedWallet(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()

	// Rented wallet with no user referencing it, past the grace period.
	if _, err := env.wallets.Mint(ctx, time.Now().UTC().Add(5*time.Minute)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	env.svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	report, err := env.svc.SweepConsistency(ctx, time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.OrphanedWallets) != 1 || report.OrphanedWallets[0] != 1 {
		t.Fatalf("expected wallet 1 flagged orphaned, got %+v", report.OrphanedWallets)
	}
}

func TestSweepClosesOverdueLease(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()
	env.register(t, "u1")

	number, err := env.svc.Rent(ctx, "u1")
	if err != nil {
		t.Fatalf("rent: %v", err)
	}

	// Well past expiry plus grace: the timer was lost.
	env.svc.now = func() time.Time { return time.Now().UTC().Add(20 * time.Minute) }

	report, err := env.svc.SweepConsistency(ctx, time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.ExpiredClosed) != 1 || report.ExpiredClosed[0] != number {
		t.Fatalf("expected wallet %d force-closed, got %+v", number, report.ExpiredClosed)
	}

	w, err := env.wallets.GetByNumber(ctx, number)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.IsRented {
		t.Fatal("overdue lease must be closed")
	}
	user, err := env.registrar.User(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.HasLease() {
		t.Fatal("back-reference must be cleared")
	}
}

func TestSweepSkipsFreshLeases(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()

	// Rented moments ago: a concurrent rent may not have linked yet, so the
	// sweep must not judge it.
	if _, err := env.wallets.Mint(ctx, time.Now().UTC().Add(5*time.Minute)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	report, err := env.svc.SweepConsistency(ctx, time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !report.Empty() {
		t.Fatalf("fresh lease must be skipped, got %+v", report)
	}
}

func TestSweepHealsStaleLink(t *testing.T) {
	env := newTestEnv(t, config.PolicyRetain)
	ctx := context.Background()
	env.register(t, "u1")

	// A back-reference to a wallet the ledger never marked rented.
	if err := env.registrar.Link(ctx, "u1", 42); err != nil {
		t.Fatalf("link: %v", err)
	}

	report, err := env.svc.SweepConsistency(ctx, time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.StaleLinks) != 1 || report.StaleLinks[0] != "u1" {
		t.Fatalf("expected u1 flagged stale, got %+v", report.StaleLinks)
	}

	user, err := env.registrar.User(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.HasLease() {
		t.Fatal("stale back-reference must be cleared")
	}
}
