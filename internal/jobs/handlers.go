package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vaultrent/vaultrent/internal/rental"
)

// NewLeaseExpireHandler bridges delayed expiry tasks to the rental service.
func NewLeaseExpireHandler(svc *rental.Service) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload LeaseExpirePayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("decode lease expire payload: %w", err)
		}

		return svc.ExpireLease(ctx, payload.UID, payload.WalletNumber)
	}
}

// NewConsistencySweepHandler runs the cross-store sweep with the configured grace.
func NewConsistencySweepHandler(svc *rental.Service, grace time.Duration, log *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		report, err := svc.SweepConsistency(ctx, grace)
		if err != nil {
			return err
		}
		if log != nil && !report.Empty() {
			log.InfoContext(ctx, "consistency sweep report",
				slog.Int("orphaned_wallets", len(report.OrphanedWallets)),
				slog.Int("stale_links", len(report.StaleLinks)),
				slog.Int("expired_closed", len(report.ExpiredClosed)),
			)
		}
		return nil
	}
}
