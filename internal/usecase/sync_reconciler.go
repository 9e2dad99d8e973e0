package usecase

import (
	"context"
	"errors"
	"time"

	"certledger/internal/domain"

	"go.uber.org/zap"
)

const (
	SyncRevocationReason    = "Sync revocation"
	SyncReinstatementReason = "Sync reinstatement"

	syncLockKey           = "certledger:sync-reconciler"
	defaultSyncBatchLimit = 100
	defaultSyncLockTTL    = 2 * time.Minute
)

var ErrSyncInProgress = errors.New("sync already in progress")

const errSuperseded = "sync status changed during reconciliation"

type SyncReconciler struct {
	Store         SyncStatusRepository
	Ledger        LedgerGateway
	Locker        Locker
	Observer      Observer
	Logger        *zap.Logger
	Clock         Clock
	BatchLimit    int
	MaxAttempts   int // rows at the cap stay flagged but are no longer swept; zero means no cap
	LockTTL       time.Duration
	LedgerTimeout time.Duration
}

func NewSyncReconciler(store SyncStatusRepository, ledger LedgerGateway, logger *zap.Logger, clock Clock) *SyncReconciler {
	return &SyncReconciler{
		Store:  store,
		Ledger: ledger,
		Logger: logger,
		Clock:  clock,
	}
}

// Reconcile runs one sweep over every status row flagged needsSync. A row
// whose flags already agree is only marked clean; otherwise a corrective
// ledger call is made. Each row's failure is recorded on that row and the
// sweep moves on.
func (r *SyncReconciler) Reconcile(ctx context.Context) ([]domain.SyncOutcome, error) {
	if r == nil || r.Store == nil || r.Ledger == nil {
		return nil, errors.New("sync reconciler requires a store and a ledger")
	}
	if r.Locker != nil {
		ttl := r.LockTTL
		if ttl <= 0 {
			ttl = defaultSyncLockTTL
		}
		release, acquired, err := r.Locker.TryLock(ctx, syncLockKey, ttl)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, ErrSyncInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logger().Warn("release sync lock", zap.Error(err))
			}
		}()
	}

	limit := r.BatchLimit
	if limit <= 0 {
		limit = defaultSyncBatchLimit
	}
	rows, err := r.Store.ListNeedingSync(ctx, limit, r.MaxAttempts)
	if err != nil {
		return nil, err
	}
	r.observer().ObserveSyncBacklog(len(rows))

	outcomes := make([]domain.SyncOutcome, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcome := r.reconcileOne(ctx, row)
		r.observer().ObserveSync(outcome)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (r *SyncReconciler) reconcileOne(ctx context.Context, row domain.RegistrySyncStatus) domain.SyncOutcome {
	log := r.logger().With(zap.String("token", row.TokenAddress), zap.Int64("certificate_id", row.CertificateID))
	outcome := domain.SyncOutcome{TokenAddress: row.TokenAddress, Action: domain.SyncActionNone}

	status, err := r.checkStatus(ctx, row.TokenAddress)
	if err != nil {
		return r.recordFailure(ctx, log, row, outcome, err)
	}
	if status.Revoked == row.OffChainRevoked {
		outcome.Action = domain.SyncActionConfirmed
		return r.recordSuccess(ctx, log, row, outcome, status.Revoked)
	}

	var receipt domain.LedgerReceipt
	if row.OffChainRevoked {
		outcome.Action = domain.SyncActionRevoked
		receipt, err = r.withTimeout(ctx, func(callCtx context.Context) (domain.LedgerReceipt, error) {
			return r.Ledger.Revoke(callCtx, row.TokenAddress, SyncRevocationReason, domain.CorrelationID(row.CertificateID))
		})
	} else {
		outcome.Action = domain.SyncActionReinstated
		receipt, err = r.withTimeout(ctx, func(callCtx context.Context) (domain.LedgerReceipt, error) {
			return r.Ledger.Reinstate(callCtx, row.TokenAddress, SyncReinstatementReason)
		})
	}
	if err == nil && !receipt.Success {
		err = errLedgerRejected
	}
	if err != nil {
		return r.recordFailure(ctx, log, row, outcome, err)
	}
	return r.recordSuccess(ctx, log, row, outcome, row.OffChainRevoked)
}

func (r *SyncReconciler) recordSuccess(ctx context.Context, log *zap.Logger, row domain.RegistrySyncStatus, outcome domain.SyncOutcome, onChain bool) domain.SyncOutcome {
	at := r.now().UTC()
	applied, err := r.Store.ApplySyncResult(ctx, row.TokenAddress, row.OffChainRevoked, domain.SyncResult{
		Success:        true,
		OnChainRevoked: onChain,
		At:             at,
	})
	switch {
	case err != nil:
		outcome.Error = err.Error()
		log.Error("store sync result", zap.Error(err))
	case !applied:
		outcome.Error = errSuperseded
		log.Info("sync result superseded by a newer transition")
	default:
		outcome.Success = true
		outcome.SyncedAt = &at
		log.Info("token synced", zap.String("action", string(outcome.Action)))
	}
	return outcome
}

func (r *SyncReconciler) recordFailure(ctx context.Context, log *zap.Logger, row domain.RegistrySyncStatus, outcome domain.SyncOutcome, cause error) domain.SyncOutcome {
	outcome.Error = cause.Error()
	log.Warn("token sync failed",
		zap.String("action", string(outcome.Action)),
		zap.Int("attempts", row.SyncAttempts+1),
		zap.Error(cause),
	)
	if _, err := r.Store.ApplySyncResult(ctx, row.TokenAddress, row.OffChainRevoked, domain.SyncResult{
		Error: cause.Error(),
		At:    r.now().UTC(),
	}); err != nil {
		log.Error("store sync failure", zap.Error(err))
	}
	return outcome
}

func (r *SyncReconciler) checkStatus(ctx context.Context, token string) (domain.LedgerStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.ledgerTimeout())
	defer cancel()
	return r.Ledger.CheckStatus(callCtx, token)
}

func (r *SyncReconciler) withTimeout(ctx context.Context, call func(context.Context) (domain.LedgerReceipt, error)) (domain.LedgerReceipt, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.ledgerTimeout())
	defer cancel()
	return call(callCtx)
}

// Run sweeps every interval until ctx is done.
func (r *SyncReconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcomes, err := r.Reconcile(ctx)
			switch {
			case errors.Is(err, ErrSyncInProgress):
				r.logger().Debug("sync sweep skipped, another replica holds the lock")
			case err != nil && ctx.Err() == nil:
				r.logger().Error("sync sweep failed", zap.Error(err))
			case len(outcomes) > 0:
				r.logger().Info("sync sweep finished", zap.Int("tokens", len(outcomes)), zap.Int("failed", countFailed(outcomes)))
			}
		}
	}
}

func countFailed(outcomes []domain.SyncOutcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Success {
			n++
		}
	}
	return n
}

func (r *SyncReconciler) ledgerTimeout() time.Duration {
	if r.LedgerTimeout > 0 {
		return r.LedgerTimeout
	}
	return defaultLedgerTimeout
}

func (r *SyncReconciler) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

func (r *SyncReconciler) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}

func (r *SyncReconciler) observer() Observer {
	if r.Observer != nil {
		return r.Observer
	}
	return nopObserver{}
}
