package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"certledger/internal/app"
	"certledger/internal/config"
	httpinfra "certledger/internal/infra/http"
	"certledger/internal/logging"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close resources", zap.Error(err))
		}
	}()

	srv := httpinfra.NewServerWithDeps(cfg, httpinfra.ServerDeps{
		Revocations:  a.Revocations,
		Batch:        a.Batch,
		Queries:      a.Queries,
		Reports:      a.Reports,
		Reconciler:   a.Reconciler,
		Verifier:     a.Verifier,
		Certificates: a.Store.Certificates,
		Ping:         a.Store.Ping,
		LedgerState:  a.LedgerState,
		RateLimiter:  a.RateLimiter,
		Metrics:      a.Metrics,
		Gatherer:     a.Registry,
		Logger:       logger.Named("http"),
	})
	if err := srv.InitErr(); err != nil {
		return err
	}

	done := make(chan struct{})
	if cfg.SyncInterval > 0 {
		go func() {
			defer close(done)
			a.Reconciler.Run(ctx, cfg.SyncInterval)
		}()
	} else {
		close(done)
	}

	err = srv.Run(ctx)
	stop()
	<-done
	return err
}
