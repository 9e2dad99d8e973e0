package db

import (
	"context"
	"time"

	"certledger/internal/domain"

	"gorm.io/gorm"
)

type SyncStatusRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSyncStatusRepository(db *gorm.DB) *SyncStatusRepository {
	return &SyncStatusRepository{db: db, now: time.Now}
}

// ListNeedingSync returns flagged rows, least recently touched first. When
// maxAttempts is positive, rows that already failed that many times are left
// out so they cannot crowd the rest of the queue out of the limit.
func (r *SyncStatusRepository) ListNeedingSync(ctx context.Context, limit, maxAttempts int) ([]domain.RegistrySyncStatus, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	q := r.db.WithContext(ctx).Where("needs_sync = ?", true).Order("updated_at asc, id asc")
	if maxAttempts > 0 {
		q = q.Where("sync_attempts < ?", maxAttempts)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []RegistrySyncStatusModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return syncStatusesFromModels(models), nil
}

// ApplySyncResult writes a reconciler result for tokenAddress only if the
// row still carries the off-chain intent the reconciler acted on.
func (r *SyncStatusRepository) ApplySyncResult(ctx context.Context, tokenAddress string, observedOffChain bool, result domain.SyncResult) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	now := dbTime(r.now())
	var updates map[string]any
	if result.Success {
		at := result.At
		if at.IsZero() {
			at = now
		}
		updates = map[string]any{
			"on_chain_revoked": result.OnChainRevoked,
			"needs_sync":       false,
			"sync_attempts":    0,
			"last_error":       nil,
			"last_sync_at":     dbTime(at),
			"updated_at":       now,
		}
	} else {
		updates = map[string]any{
			"needs_sync":    true,
			"sync_attempts": gorm.Expr("sync_attempts + 1"),
			"last_error":    result.Error,
			"updated_at":    now,
		}
	}
	res := r.db.WithContext(ctx).Model(&RegistrySyncStatusModel{}).
		Where("token_address = ? AND off_chain_revoked = ?", tokenAddress, observedOffChain).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *SyncStatusRepository) GetSyncStatus(ctx context.Context, tokenAddress string) (domain.RegistrySyncStatus, error) {
	if r.db == nil {
		return domain.RegistrySyncStatus{}, errDBUnavailable
	}
	var model RegistrySyncStatusModel
	if err := r.db.WithContext(ctx).Where("token_address = ?", tokenAddress).First(&model).Error; err != nil {
		return domain.RegistrySyncStatus{}, mapNotFound(err, domain.ErrNotFound)
	}
	return syncStatusFromModel(model), nil
}

func (r *SyncStatusRepository) ListSyncStatuses(ctx context.Context, needsSyncOnly bool) ([]domain.RegistrySyncStatus, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	q := r.db.WithContext(ctx).Order("updated_at desc, id desc")
	if needsSyncOnly {
		q = q.Where("needs_sync = ?", true)
	}
	var models []RegistrySyncStatusModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return syncStatusesFromModels(models), nil
}

func incrementSyncAttempts(tx *gorm.DB, tokenAddress, errText string, now time.Time) error {
	return tx.Model(&RegistrySyncStatusModel{}).
		Where("token_address = ?", tokenAddress).
		Updates(map[string]any{
			"needs_sync":    true,
			"sync_attempts": gorm.Expr("sync_attempts + 1"),
			"last_error":    errText,
			"updated_at":    now,
		}).Error
}

func syncStatusesFromModels(models []RegistrySyncStatusModel) []domain.RegistrySyncStatus {
	out := make([]domain.RegistrySyncStatus, 0, len(models))
	for _, m := range models {
		out = append(out, syncStatusFromModel(m))
	}
	return out
}
