package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"certledger/internal/domain"
	"certledger/internal/usecase"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RevocationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRevocationRepository(db *gorm.DB) *RevocationRepository {
	return &RevocationRepository{db: db, now: time.Now}
}

func (r *RevocationRepository) WithTx(ctx context.Context, fn func(tx usecase.RevocationTx) error) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&revocationTx{db: tx, now: r.now})
	})
}

// RecordLedgerSuccess attaches the ledger signature to the log and marks the
// sync row clean, unless the row's off-chain intent changed since the call
// was made. In that case only the on-chain flag is refreshed.
func (r *RevocationRepository) RecordLedgerSuccess(ctx context.Context, logID int64, tokenAddress, signature string, onChainRevoked bool, at time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if signature != "" {
			if err := tx.Model(&RevocationLogModel{}).
				Where("id = ?", logID).
				Update("transaction_signature", signature).Error; err != nil {
				return fmt.Errorf("attach signature: %w", err)
			}
		}
		now := dbTime(r.now())
		res := tx.Model(&RegistrySyncStatusModel{}).
			Where("token_address = ? AND off_chain_revoked = ?", tokenAddress, onChainRevoked).
			Updates(map[string]any{
				"on_chain_revoked": onChainRevoked,
				"needs_sync":       false,
				"sync_attempts":    0,
				"last_error":       nil,
				"last_sync_at":     dbTime(at),
				"updated_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Model(&RegistrySyncStatusModel{}).
			Where("token_address = ?", tokenAddress).
			Updates(map[string]any{"on_chain_revoked": onChainRevoked, "updated_at": now}).Error
	})
}

func (r *RevocationRepository) RecordLedgerFailure(ctx context.Context, logID int64, tokenAddress, errText string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateLogMetadata(tx, logID, func(md *domain.LogMetadata) {
			md.OnChainError = errText
			md.OnChainPending = true
		}); err != nil {
			return err
		}
		return incrementSyncAttempts(tx, tokenAddress, errText, dbTime(r.now()))
	})
}

func (r *RevocationRepository) SetMetadataURI(ctx context.Context, certificateID, logID int64, uri string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&CertificateModel{}).
			Where("id = ?", certificateID).
			Updates(map[string]any{"metadata_uri": uri, "updated_at": dbTime(r.now())})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrCertificateNotFound
		}
		return updateLogMetadata(tx, logID, func(md *domain.LogMetadata) {
			md.PinnedMetadataURI = uri
		})
	})
}

func updateLogMetadata(tx *gorm.DB, logID int64, mutate func(md *domain.LogMetadata)) error {
	var model RevocationLogModel
	if err := tx.Select("id", "metadata").Where("id = ?", logID).First(&model).Error; err != nil {
		return mapNotFound(err, fmt.Errorf("revocation log %d: %w", logID, domain.ErrNotFound))
	}
	var md domain.LogMetadata
	if model.Metadata != "" {
		if err := json.Unmarshal([]byte(model.Metadata), &md); err != nil {
			return fmt.Errorf("decode log metadata: %w", err)
		}
	}
	mutate(&md)
	raw, err := json.Marshal(md)
	if err != nil {
		return err
	}
	return tx.Model(&RevocationLogModel{}).Where("id = ?", logID).Update("metadata", string(raw)).Error
}

type revocationTx struct {
	db  *gorm.DB
	now func() time.Time
}

func (t *revocationTx) GetCertificate(ctx context.Context, id int64) (domain.Certificate, error) {
	return getCertificate(t.db.WithContext(ctx), id)
}

// MarkRevoked only touches an active certificate, so two concurrent revokes
// of the same certificate cannot both commit.
func (t *revocationTx) MarkRevoked(ctx context.Context, id int64, reason string, adminID int64, at time.Time) error {
	at = dbTime(at)
	res := t.db.WithContext(ctx).Model(&CertificateModel{}).
		Where("id = ? AND revoked = ?", id, false).
		Updates(map[string]any{
			"revoked":        true,
			"revoked_at":     at,
			"revoked_reason": reason,
			"revoked_by_id":  adminID,
			"updated_at":     at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlreadyRevoked
	}
	return nil
}

func (t *revocationTx) MarkReinstated(ctx context.Context, id int64, reason string, at time.Time) error {
	at = dbTime(at)
	res := t.db.WithContext(ctx).Model(&CertificateModel{}).
		Where("id = ? AND revoked = ?", id, true).
		Updates(map[string]any{
			"revoked":           false,
			"revoked_at":        nil,
			"revoked_reason":    nil,
			"revoked_by_id":     nil,
			"reinstated_at":     at,
			"reinstated_reason": reason,
			"updated_at":        at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotRevoked
	}
	return nil
}

func (t *revocationTx) CreateLog(ctx context.Context, log domain.RevocationLog) (int64, error) {
	raw, err := json.Marshal(log.Metadata)
	if err != nil {
		return 0, err
	}
	model := RevocationLogModel{
		ActionType:           string(log.ActionType),
		CertificateID:        log.CertificateID,
		TokenAddress:         log.TokenAddress,
		Reason:               log.Reason,
		AdminID:              log.AdminID,
		TransactionSignature: optional(log.TransactionSignature),
		Metadata:             string(raw),
		CreatedAt:            t.stamp(log.CreatedAt),
	}
	if err := t.db.WithContext(ctx).Create(&model).Error; err != nil {
		return 0, err
	}
	return model.ID, nil
}

func (t *revocationTx) CreateHistory(ctx context.Context, entry domain.RevocationHistory) (int64, error) {
	model := RevocationHistoryModel{
		CertificateID: entry.CertificateID,
		EventType:     string(entry.EventType),
		Reason:        entry.Reason,
		ActorID:       entry.ActorID,
		LogID:         entry.LogID,
		CreatedAt:     t.stamp(entry.CreatedAt),
	}
	if err := t.db.WithContext(ctx).Create(&model).Error; err != nil {
		return 0, err
	}
	return model.ID, nil
}

func (t *revocationTx) CreateAuditTrail(ctx context.Context, trail domain.RevocationAuditTrail) (int64, error) {
	trail.Changes.Timestamp = dbTime(trail.Changes.Timestamp)
	raw, err := json.Marshal(trail.Changes)
	if err != nil {
		return 0, err
	}
	model := RevocationAuditTrailModel{
		LogID:     trail.LogID,
		AdminID:   trail.AdminID,
		IPAddress: trail.IPAddress,
		UserAgent: trail.UserAgent,
		Changes:   string(raw),
		CreatedAt: t.stamp(trail.CreatedAt),
	}
	if err := t.db.WithContext(ctx).Create(&model).Error; err != nil {
		return 0, err
	}
	return model.ID, nil
}

// UpsertSyncStatus creates the token's sync row or, when it exists, records
// the new off-chain intent and flags it for sync. On-chain state, attempts,
// last error and last sync time survive the update.
func (t *revocationTx) UpsertSyncStatus(ctx context.Context, certificateID int64, tokenAddress string, offChainRevoked bool) error {
	now := dbTime(t.now())
	model := RegistrySyncStatusModel{
		CertificateID:   certificateID,
		TokenAddress:    tokenAddress,
		OffChainRevoked: offChainRevoked,
		OnChainRevoked:  false,
		NeedsSync:       true,
		SyncAttempts:    0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token_address"}},
		DoUpdates: clause.Assignments(map[string]any{
			"off_chain_revoked": offChainRevoked,
			"needs_sync":        true,
			"updated_at":        now,
		}),
	}).Create(&model).Error
}

func (t *revocationTx) stamp(at time.Time) time.Time {
	if at.IsZero() {
		return dbTime(t.now())
	}
	return dbTime(at)
}
