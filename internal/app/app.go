// Package app wires configuration into the services shared by certledgerd
// and certctl.
package app

import (
	"context"
	"errors"
	"fmt"

	"certledger/internal/config"
	"certledger/internal/domain"
	"certledger/internal/infra/db"
	"certledger/internal/infra/ledger"
	"certledger/internal/infra/lock"
	"certledger/internal/infra/metrics"
	"certledger/internal/infra/pinning"
	"certledger/internal/infra/ratelimit"
	"certledger/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    *db.Store
	Ledger   usecase.LedgerGateway
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	// LedgerState reports the ledger circuit breaker state, or is nil when
	// the gateway has no breaker.
	LedgerState func() string

	Revocations *usecase.RevocationService
	Batch       *usecase.BatchRevoker
	Queries     *usecase.RevocationQueries
	Reports     *usecase.ReportService
	Reconciler  *usecase.SyncReconciler
	Verifier    *usecase.Verifier
	RateLimiter domain.RateLimiter
	closers     []func() error
}

// Build opens the store and ledger and assembles every service. Close
// releases them in reverse order.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Store, err = db.NewStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.closers = append(a.closers, a.Store.Close)

	gateway, closeLedger, err := ledger.FromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	a.closers = append(a.closers, func() error { closeLedger(); return nil })
	a.Ledger = gateway

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)
	if breaker, ok := gateway.(*ledger.Breaker); ok {
		metrics.RegisterLedgerBreaker(a.Registry, func() float64 { return float64(breaker.State()) })
		a.LedgerState = func() string { return breaker.State().String() }
	}

	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, rdb.Close)
	}

	switch cfg.RateLimitMode {
	case "redis":
		if rdb == nil {
			return nil, errors.New("REDIS_ADDR is required for RATE_LIMIT_MODE=redis")
		}
		limiter, err := ratelimit.NewRedisLimiter(rdb, nil)
		if err != nil {
			return nil, err
		}
		a.RateLimiter = limiter
	default:
		a.RateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{MaxKeys: cfg.RateLimitMaxKeys})
	}

	// Every write goes through the status cache so public verification never
	// serves a status older than the last transition. The reconciler reads
	// the ledger directly.
	statusCache := ledger.NewStatusCache(gateway, cfg.LedgerStatusCacheTTL)

	a.Revocations = usecase.NewRevocationService(a.Store.Revocations, statusCache, logger.Named("revocation"), nil)
	a.Revocations.Admins = a.Store.Admins
	a.Revocations.Observer = a.Metrics
	a.Revocations.LedgerTimeout = cfg.LedgerTimeout
	if cfg.IPFSAPIURL != "" {
		a.Revocations.Publisher = pinning.NewIPFSPublisher(cfg.IPFSAPIURL, 0, logger.Named("ipfs"))
	}

	var pacer usecase.Pacer = usecase.FixedDelayPacer{Delay: cfg.BatchDelay}
	if cfg.BatchRate > 0 {
		pacer = ratelimit.NewRatePacer(cfg.BatchRate)
	}
	a.Batch = usecase.NewBatchRevoker(a.Revocations, pacer, logger.Named("batch"))

	a.Queries = usecase.NewRevocationQueries(a.Store.Certificates, a.Store.Logs, a.Store.SyncStatus)
	a.Reports = usecase.NewReportService(a.Store.Logs, nil)

	a.Reconciler = usecase.NewSyncReconciler(a.Store.SyncStatus, statusCache.Uncached(), logger.Named("sync"), nil)
	a.Reconciler.Observer = a.Metrics
	a.Reconciler.BatchLimit = cfg.SyncBatchLimit
	a.Reconciler.MaxAttempts = cfg.SyncMaxAttempts
	a.Reconciler.LockTTL = cfg.SyncLockTTL
	a.Reconciler.LedgerTimeout = cfg.LedgerTimeout
	if rdb != nil {
		locker, err := lock.NewRedisLocker(rdb)
		if err != nil {
			return nil, err
		}
		a.Reconciler.Locker = locker
	}

	a.Verifier = usecase.NewVerifier(a.Store.Certificates, statusCache, logger.Named("verify"))
	a.Verifier.LedgerTimeout = cfg.LedgerTimeout
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
