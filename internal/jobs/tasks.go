package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeLeaseExpire      = "lease:expire"
	TaskTypeConsistencySweep = "consistency:sweep"
)

const (
	QueueLeases      = "leases"
	QueueMaintenance = "maintenance"
)

// Queues maps queue names to their processing priorities.
func Queues() map[string]int {
	return map[string]int{
		QueueLeases:      5,
		QueueMaintenance: 1,
	}
}

// LeaseExpirePayload identifies the lease a delayed expiry task closes.
type LeaseExpirePayload struct {
	UID          string `json:"uid"`
	WalletNumber int64  `json:"wallet_number"`
}

// NewLeaseExpireTask builds the one-shot expiry task for a lease.
func NewLeaseExpireTask(uid string, walletNumber int64) (*asynq.Task, error) {
	payload, err := json.Marshal(LeaseExpirePayload{UID: uid, WalletNumber: walletNumber})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeLeaseExpire, payload, asynq.Queue(QueueLeases)), nil
}

// NewConsistencySweepTask builds the periodic cross-store sweep task.
func NewConsistencySweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeConsistencySweep, nil, asynq.Queue(QueueMaintenance))
}

// LeaseTaskID derives the deterministic task id for a lease, letting early
// settlement cancel the pending expiry by wallet number alone.
func LeaseTaskID(walletNumber int64) string {
	return fmt.Sprintf("%s:%d", TaskTypeLeaseExpire, walletNumber)
}
