package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/vaultrent/vaultrent/internal/config"
	"github.com/vaultrent/vaultrent/internal/identity"
	"github.com/vaultrent/vaultrent/internal/infra"
	"github.com/vaultrent/vaultrent/internal/jobs"
	"github.com/vaultrent/vaultrent/internal/logging"
	"github.com/vaultrent/vaultrent/internal/notification"
	"github.com/vaultrent/vaultrent/internal/rental"
	"github.com/vaultrent/vaultrent/internal/routes"
	"github.com/vaultrent/vaultrent/internal/server"
	"github.com/vaultrent/vaultrent/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	deps := routes.Deps{Cfg: cfg, Logger: logger}

	var walletRepo wallet.Repository
	if cfg.LedgerDatabaseURL != "" {
		ledgerDB, err := infra.NewPostgresPool(ctx, cfg.LedgerDatabaseURL)
		if err != nil {
			logger.Error("connect ledger postgres", "error", err)
			os.Exit(1)
		}
		defer ledgerDB.Close()
		if err := infra.EnsureLedgerSchema(ctx, ledgerDB); err != nil {
			logger.Error("migrate ledger store", "error", err)
			os.Exit(1)
		}
		deps.LedgerDB = ledgerDB
		walletRepo = wallet.NewPostgresRepository(ledgerDB)
	} else {
		logger.Warn("no ledger database configured, using in-memory store")
		walletRepo = wallet.NewMemoryRepository()
	}

	var userRepo identity.Repository
	if cfg.IdentityDatabaseURL != "" {
		identityDB, err := infra.NewPostgresPool(ctx, cfg.IdentityDatabaseURL)
		if err != nil {
			logger.Error("connect identity postgres", "error", err)
			os.Exit(1)
		}
		defer identityDB.Close()
		if err := infra.EnsureIdentitySchema(ctx, identityDB); err != nil {
			logger.Error("migrate identity store", "error", err)
			os.Exit(1)
		}
		deps.IdentityDB = identityDB
		userRepo = identity.NewPostgresRepository(identityDB)
	} else {
		logger.Warn("no identity database configured, using in-memory store")
		userRepo = identity.NewMemoryRepository()
	}

	registrar := identity.NewRegistrar(userRepo)
	notifier := notification.NewLoggerNotifier(logger)

	var (
		expiry   rental.ExpiryScheduler
		timer    *rental.TimerScheduler
		redisOpt asynq.RedisConnOpt
	)
	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		deps.Cache = cache

		redisOpt, err = asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			logger.Error("parse redis uri for jobs", "error", err)
			os.Exit(1)
		}
		expiryScheduler := jobs.NewExpiryScheduler(redisOpt)
		defer func() {
			if err := expiryScheduler.Close(); err != nil {
				logger.Warn("close expiry scheduler", "error", err)
			}
		}()
		expiry = expiryScheduler
	} else {
		logger.Warn("no redis configured, lease expirations use in-process timers")
		timer = rental.NewTimerScheduler(logger)
		expiry = timer
	}

	rentalSvc := rental.NewService(walletRepo, registrar, expiry, notifier, logger,
		cfg.LeaseDuration, cfg.StrandedFundsPolicy)
	if timer != nil {
		timer.Bind(rentalSvc.ExpireLease)
	}
	deps.Registrar = registrar
	deps.Rental = rentalSvc

	if redisOpt != nil {
		worker := jobs.NewWorker(redisOpt, logger)
		worker.RegisterHandler(jobs.TaskTypeLeaseExpire, jobs.NewLeaseExpireHandler(rentalSvc))
		worker.RegisterHandler(jobs.TaskTypeConsistencySweep, jobs.NewConsistencySweepHandler(rentalSvc, cfg.SweepGrace, logger))
		go func() {
			if err := worker.Run(); err != nil {
				logger.Error("jobs worker stopped", "error", err)
			}
		}()
		defer worker.Shutdown()

		sched := jobs.NewScheduler(redisOpt, logger)
		if err := sched.RegisterTasks(cfg.SweepCron); err != nil {
			logger.Error("register periodic tasks", "error", err)
			os.Exit(1)
		}
		sched.Run()
		defer sched.Shutdown()
	}

	srv, err := server.New(cfg, deps)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
