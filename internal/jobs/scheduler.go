package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Scheduler registers periodic maintenance tasks and controls their lifecycle.
type Scheduler interface {
	RegisterTasks(sweepCron string) error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	log            *slog.Logger
}

// NewScheduler builds a Scheduler backed by asynq.
func NewScheduler(redisOpt asynq.RedisConnOpt, log *slog.Logger) Scheduler {
	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, nil),
		log:            log,
	}
}

// RegisterTasks wires the periodic consistency sweep at the given cron spec.
func (s *scheduler) RegisterTasks(sweepCron string) error {
	if _, err := s.asynqScheduler.Register(sweepCron, NewConsistencySweepTask()); err != nil {
		return err
	}

	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: registered consistency sweep", "cron", sweepCron)
	}

	return nil
}

// Run starts the scheduler loop in the background.
func (s *scheduler) Run() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: starting")
	}

	go func() {
		if err := s.asynqScheduler.Run(); err != nil && s.log != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", "error", err)
		}
	}()
}

// Shutdown stops the scheduler.
func (s *scheduler) Shutdown() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: shutting down")
	}

	s.asynqScheduler.Shutdown()
}
