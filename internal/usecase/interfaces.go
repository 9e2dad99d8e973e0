package usecase

import (
	"context"
	"time"

	"certledger/internal/domain"
)

type Clock func() time.Time

type CertificateRepository interface {
	GetCertificateByID(ctx context.Context, id int64) (domain.Certificate, error)
	GetCertificateByTokenAddress(ctx context.Context, tokenAddress string) (domain.Certificate, error)
}

type AdminRepository interface {
	GetAdmin(ctx context.Context, id int64) (domain.Admin, error)
}

// RevocationTx is the set of writes a state transition performs. Every call
// made through one RevocationTx commits or rolls back together.
type RevocationTx interface {
	GetCertificate(ctx context.Context, id int64) (domain.Certificate, error)
	MarkRevoked(ctx context.Context, id int64, reason string, adminID int64, at time.Time) error
	MarkReinstated(ctx context.Context, id int64, reason string, at time.Time) error
	CreateLog(ctx context.Context, log domain.RevocationLog) (int64, error)
	CreateHistory(ctx context.Context, entry domain.RevocationHistory) (int64, error)
	CreateAuditTrail(ctx context.Context, trail domain.RevocationAuditTrail) (int64, error)
	UpsertSyncStatus(ctx context.Context, certificateID int64, tokenAddress string, offChainRevoked bool) error
}

type RevocationStore interface {
	WithTx(ctx context.Context, fn func(tx RevocationTx) error) error
	RecordLedgerSuccess(ctx context.Context, logID int64, tokenAddress, signature string, onChainRevoked bool, at time.Time) error
	RecordLedgerFailure(ctx context.Context, logID int64, tokenAddress, errText string) error
	SetMetadataURI(ctx context.Context, certificateID, logID int64, uri string) error
}

type SyncStatusRepository interface {
	ListNeedingSync(ctx context.Context, limit, maxAttempts int) ([]domain.RegistrySyncStatus, error)
	ApplySyncResult(ctx context.Context, tokenAddress string, observedOffChain bool, result domain.SyncResult) (bool, error)
	GetSyncStatus(ctx context.Context, tokenAddress string) (domain.RegistrySyncStatus, error)
	ListSyncStatuses(ctx context.Context, needsSyncOnly bool) ([]domain.RegistrySyncStatus, error)
}

type RevocationLogRepository interface {
	ListHistory(ctx context.Context, certificateID int64) ([]domain.RevocationHistory, error)
	ListLogs(ctx context.Context, filter domain.LogFilter) ([]domain.RevocationLog, int64, error)
	ListLogsBetween(ctx context.Context, start, end time.Time) ([]domain.RevocationLog, error)
}

// LedgerGateway mutates and reads the on-chain revocation flag. Any error,
// including a context deadline, is a deferred-sync failure for callers.
type LedgerGateway interface {
	Revoke(ctx context.Context, tokenAddress, reason, correlationID string) (domain.LedgerReceipt, error)
	Reinstate(ctx context.Context, tokenAddress, reason string) (domain.LedgerReceipt, error)
	CheckStatus(ctx context.Context, tokenAddress string) (domain.LedgerStatus, error)
}

type MetadataPublisher interface {
	Publish(ctx context.Context, metadata domain.CertificateMetadata) (string, error)
}

// Pacer spaces out consecutive batch items.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Locker guards work that only one replica may run at a time. When the lock
// is held elsewhere TryLock returns acquired=false and a nil error.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

type Observer interface {
	ObserveTransition(action domain.ActionType, success bool, onChainPending bool)
	ObserveSync(outcome domain.SyncOutcome)
	ObserveSyncBacklog(pending int)
}

type nopObserver struct{}

func (nopObserver) ObserveTransition(domain.ActionType, bool, bool) {}
func (nopObserver) ObserveSync(domain.SyncOutcome)                  {}
func (nopObserver) ObserveSyncBacklog(int)                          {}
