package rental

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vaultrent/vaultrent/internal/identity"
	"github.com/vaultrent/vaultrent/internal/metrics"
	"github.com/vaultrent/vaultrent/internal/wallet"
)

// SweepReport summarizes one consistency sweep over both stores.
type SweepReport struct {
	// OrphanedWallets are rented wallets no user references.
	OrphanedWallets []int64
	// StaleLinks are uids whose back-reference points at a wallet that is
	// not rented. These are healed by clearing the reference.
	StaleLinks []string
	// ExpiredClosed are wallets whose lease outlived its expiry past the
	// grace period and were force-closed, covering lost expiry timers.
	ExpiredClosed []int64
}

// Empty reports whether the sweep found nothing to flag.
func (r SweepReport) Empty() bool {
	return len(r.OrphanedWallets) == 0 && len(r.StaleLinks) == 0 && len(r.ExpiredClosed) == 0
}

// SweepConsistency detects and, where safe, heals state the best-effort dual
// writes can leave behind: a crash between the ledger write and the identity
// write strands one side. There is no cross-store transaction, so the sweep
// is the repair mechanism of record.
//
// grace delays judgment on freshly expired leases so an in-flight expiry task
// or settlement is not mistaken for a lost timer.
func (s *Service) SweepConsistency(ctx context.Context, grace time.Duration) (SweepReport, error) {
	var report SweepReport
	now := s.now()

	rented, err := s.wallets.ListRented(ctx)
	if err != nil {
		return report, fmt.Errorf("list rented wallets: %w", err)
	}

	for _, w := range rented {
		// Skip leases granted less than grace ago: a rent may be between
		// its ledger write and its identity write right now.
		rentedAt := w.RentalExpiry.Add(-s.leaseDuration)
		if now.Sub(rentedAt) <= grace {
			continue
		}

		if _, err := s.registrar.UserByWallet(ctx, w.Number); err != nil {
			if !errors.Is(err, identity.ErrNotFound) {
				return report, fmt.Errorf("look up renter of wallet %d: %w", w.Number, err)
			}
			report.OrphanedWallets = append(report.OrphanedWallets, w.Number)
			s.reportInconsistency(ctx, w.Number,
				fmt.Sprintf("wallet %d is rented but no user references it", w.Number))
		}

		if now.Sub(w.RentalExpiry) > grace {
			// The expiry task never fired (e.g. restart with in-process
			// timers). Close here; the CAS keeps this safe against a
			// concurrent settlement.
			if err := s.expire(ctx, "", w.Number, metrics.PathSweep); err != nil {
				s.logger.Warn("sweep: close overdue lease",
					slog.Int64("wallet_number", w.Number),
					slog.Any("error", err),
				)
				continue
			}
			report.ExpiredClosed = append(report.ExpiredClosed, w.Number)
		}
	}

	linked, err := s.registrar.Linked(ctx)
	if err != nil {
		return report, fmt.Errorf("list linked users: %w", err)
	}

	for _, u := range linked {
		w, err := s.wallets.GetByNumber(ctx, u.RentedWallet)
		if err != nil && !errors.Is(err, wallet.ErrNotFound) {
			return report, fmt.Errorf("look up wallet %d: %w", u.RentedWallet, err)
		}
		if err == nil && w.IsRented {
			continue
		}

		// The user points at a wallet that is free or missing. Clear the
		// stale reference so the wallet can be re-leased cleanly.
		report.StaleLinks = append(report.StaleLinks, u.UID)
		s.reportInconsistency(ctx, u.RentedWallet,
			fmt.Sprintf("user %s references wallet %d which is not rented", u.UID, u.RentedWallet))
		if err := s.registrar.Unlink(ctx, u.RentedWallet); err != nil && !errors.Is(err, identity.ErrNotFound) {
			s.logger.Warn("sweep: clear stale back-reference",
				slog.String("uid", u.UID),
				slog.Int64("wallet_number", u.RentedWallet),
				slog.Any("error", err),
			)
		}
	}

	if !report.Empty() {
		s.logger.Info("consistency sweep finished",
			slog.Int("orphaned_wallets", len(report.OrphanedWallets)),
			slog.Int("stale_links", len(report.StaleLinks)),
			slog.Int("expired_closed", len(report.ExpiredClosed)),
		)
	}
	return report, nil
}
