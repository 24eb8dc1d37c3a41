package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vaultrent/vaultrent/internal/rental"
)

var _ rental.ExpiryScheduler = (*ExpiryScheduler)(nil)

// ExpiryScheduler schedules lease expirations as delayed asynq tasks. Unlike
// the in-process timer scheduler, pending expirations live in Redis and
// survive process restarts.
type ExpiryScheduler struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewExpiryScheduler builds the Redis-backed expiry scheduler.
func NewExpiryScheduler(redisOpt asynq.RedisConnOpt) *ExpiryScheduler {
	return &ExpiryScheduler{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
	}
}

// Schedule enqueues a one-shot expiry task firing after d. The task id is
// derived from the wallet number; a conflicting id means a stale task from a
// previous lease on the same wallet survived, so it is deleted and the
// enqueue retried once.
func (s *ExpiryScheduler) Schedule(ctx context.Context, uid string, number int64, d time.Duration) error {
	task, err := NewLeaseExpireTask(uid, number)
	if err != nil {
		return fmt.Errorf("build expiry task: %w", err)
	}

	opts := []asynq.Option{
		asynq.ProcessIn(d),
		asynq.TaskID(LeaseTaskID(number)),
		asynq.MaxRetry(0),
	}

	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		if !errors.Is(err, asynq.ErrTaskIDConflict) {
			return fmt.Errorf("enqueue expiry task: %w", err)
		}
		if err := s.Cancel(ctx, number); err != nil {
			return err
		}
		if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
			return fmt.Errorf("enqueue expiry task after conflict: %w", err)
		}
	}
	return nil
}

// Cancel removes the pending expiry task for the lease. A task that already
// fired or never existed is not an error: the firing path re-checks lease
// state anyway.
func (s *ExpiryScheduler) Cancel(_ context.Context, number int64) error {
	err := s.inspector.DeleteTask(QueueLeases, LeaseTaskID(number))
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return fmt.Errorf("delete expiry task: %w", err)
}

// Close releases the underlying asynq client.
func (s *ExpiryScheduler) Close() error {
	return s.client.Close()
}
