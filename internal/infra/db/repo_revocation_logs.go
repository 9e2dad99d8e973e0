package db

import (
	"context"
	"time"

	"certledger/internal/domain"

	"gorm.io/gorm"
)

type RevocationLogRepository struct {
	db *gorm.DB
}

func NewRevocationLogRepository(db *gorm.DB) *RevocationLogRepository {
	return &RevocationLogRepository{db: db}
}

func (r *RevocationLogRepository) ListHistory(ctx context.Context, certificateID int64) ([]domain.RevocationHistory, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []RevocationHistoryModel
	if err := r.db.WithContext(ctx).
		Where("certificate_id = ?", certificateID).
		Order("created_at desc, id desc").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.RevocationHistory, 0, len(models))
	for _, m := range models {
		out = append(out, historyFromModel(m))
	}
	return out, nil
}

func (r *RevocationLogRepository) ListLogs(ctx context.Context, filter domain.LogFilter) ([]domain.RevocationLog, int64, error) {
	if r.db == nil {
		return nil, 0, errDBUnavailable
	}
	q := r.db.WithContext(ctx).Model(&RevocationLogModel{})
	if filter.Start != nil {
		q = q.Where("created_at >= ?", dbTime(*filter.Start))
	}
	if filter.End != nil {
		q = q.Where("created_at <= ?", dbTime(*filter.End))
	}
	if filter.AdminID != nil {
		q = q.Where("admin_id = ?", *filter.AdminID)
	}
	if filter.ActionType != "" {
		q = q.Where("action_type = ?", string(filter.ActionType))
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page := q.Preload("Certificate").Preload("Admin").Order("created_at desc, id desc")
	if filter.Limit > 0 {
		page = page.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		page = page.Offset(filter.Offset)
	}
	var models []RevocationLogModel
	err := page.Find(&models).Error
	if err != nil {
		return nil, 0, err
	}
	logs, err := logsFromModels(models)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// ListLogsBetween returns every log created in [start, end], oldest first.
func (r *RevocationLogRepository) ListLogsBetween(ctx context.Context, start, end time.Time) ([]domain.RevocationLog, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []RevocationLogModel
	if err := r.db.WithContext(ctx).
		Preload("Certificate").
		Preload("Admin").
		Where("created_at >= ? AND created_at <= ?", dbTime(start), dbTime(end)).
		Order("created_at asc, id asc").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return logsFromModels(models)
}

func logsFromModels(models []RevocationLogModel) ([]domain.RevocationLog, error) {
	out := make([]domain.RevocationLog, 0, len(models))
	for _, m := range models {
		l, err := logFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
