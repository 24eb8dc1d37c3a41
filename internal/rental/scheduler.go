package rental

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ExpiryScheduler arms a one-shot close of a lease after its duration. The
// firing path re-checks lease state with a compare-and-swap, so a missed or
// duplicate cancellation is harmless; Cancel only tightens the race window.
type ExpiryScheduler interface {
	Schedule(ctx context.Context, uid string, number int64, d time.Duration) error
	Cancel(ctx context.Context, number int64) error
}

// ExpireFunc is invoked when a scheduled lease expiry fires.
type ExpireFunc func(ctx context.Context, uid string, number int64) error

// TimerScheduler runs expirations on in-process timers, one per active
// lease. Pending timers are lost on restart; the consistency sweep closes
// leases whose timer never fired. Production deployments use the Redis-backed
// scheduler in the jobs package instead.
type TimerScheduler struct {
	mu     sync.Mutex
	fire   ExpireFunc
	timers map[int64]*time.Timer
	logger *slog.Logger
}

// NewTimerScheduler builds an in-process expiry scheduler.
func NewTimerScheduler(logger *slog.Logger) *TimerScheduler {
	return &TimerScheduler{timers: make(map[int64]*time.Timer), logger: logger}
}

// Bind sets the function fired on expiry. It must be called before the first
// Schedule; the split exists because the scheduler and the rental service
// reference each other.
func (s *TimerScheduler) Bind(fire ExpireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire = fire
}

// Schedule arms a timer for the lease. A wallet is only re-rented after its
// previous lease closed, so an existing timer for the number is stale and is
// replaced.
func (s *TimerScheduler) Schedule(_ context.Context, uid string, number int64, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[number]; ok {
		old.Stop()
	}

	s.timers[number] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, number)
		fire := s.fire
		s.mu.Unlock()

		if fire == nil {
			return
		}
		if err := fire(context.Background(), uid, number); err != nil && s.logger != nil {
			s.logger.Error("lease expiry failed",
				slog.String("uid", uid),
				slog.Int64("wallet_number", number),
				slog.Any("error", err),
			)
		}
	})
	return nil
}

// Cancel stops the pending timer for the lease, if any.
func (s *TimerScheduler) Cancel(_ context.Context, number int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[number]; ok {
		t.Stop()
		delete(s.timers, number)
	}
	return nil
}
