package usecase

import (
	"context"
	"errors"
	"fmt"

	"certledger/internal/domain"
)

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 200
)

type RevocationQueries struct {
	Certificates CertificateRepository
	LogRepo      RevocationLogRepository
	SyncStatus   SyncStatusRepository
}

func NewRevocationQueries(certs CertificateRepository, logs RevocationLogRepository, sync SyncStatusRepository) *RevocationQueries {
	return &RevocationQueries{Certificates: certs, LogRepo: logs, SyncStatus: sync}
}

// History returns a certificate's revocation events, newest first.
func (q *RevocationQueries) History(ctx context.Context, certificateID int64) ([]domain.RevocationHistory, error) {
	if q == nil || q.Certificates == nil || q.LogRepo == nil {
		return nil, errors.New("revocation queries are not configured")
	}
	if _, err := q.Certificates.GetCertificateByID(ctx, certificateID); err != nil {
		return nil, err
	}
	return q.LogRepo.ListHistory(ctx, certificateID)
}

func (q *RevocationQueries) HistoryByToken(ctx context.Context, tokenAddress string) (domain.Certificate, []domain.RevocationHistory, error) {
	if q == nil || q.Certificates == nil || q.LogRepo == nil {
		return domain.Certificate{}, nil, errors.New("revocation queries are not configured")
	}
	cert, err := q.Certificates.GetCertificateByTokenAddress(ctx, tokenAddress)
	if err != nil {
		return domain.Certificate{}, nil, err
	}
	history, err := q.LogRepo.ListHistory(ctx, cert.ID)
	if err != nil {
		return domain.Certificate{}, nil, err
	}
	return cert, history, nil
}

func (q *RevocationQueries) Logs(ctx context.Context, filter domain.LogFilter) (domain.LogPage, error) {
	if q == nil || q.LogRepo == nil {
		return domain.LogPage{}, errors.New("revocation log repository is required")
	}
	if filter.ActionType != "" && !filter.ActionType.Valid() {
		return domain.LogPage{}, fmt.Errorf("%w: unknown action type %q", domain.ErrInvalidRequest, filter.ActionType)
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return domain.LogPage{}, fmt.Errorf("%w: start date is after end date", domain.ErrInvalidRequest)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultLogLimit
	}
	if filter.Limit > MaxLogLimit {
		filter.Limit = MaxLogLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	logs, total, err := q.LogRepo.ListLogs(ctx, filter)
	if err != nil {
		return domain.LogPage{}, err
	}
	return domain.LogPage{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (q *RevocationQueries) SyncStatuses(ctx context.Context, needsSyncOnly bool) ([]domain.RegistrySyncStatus, error) {
	if q == nil || q.SyncStatus == nil {
		return nil, errors.New("sync status repository is required")
	}
	return q.SyncStatus.ListSyncStatuses(ctx, needsSyncOnly)
}
