package usecase

import (
	"context"
	"fmt"
	"time"

	"certledger/internal/domain"

	"go.uber.org/zap"
)

const DefaultBatchDelay = 500 * time.Millisecond

type Revoker interface {
	Revoke(ctx context.Context, req domain.RevocationRequest) domain.RevocationResponse
}

// BatchRevoker processes revoke requests one at a time, waiting on Pacer
// between consecutive requests so ledger writes stay under provider limits.
type BatchRevoker struct {
	Revoker Revoker
	Pacer   Pacer
	Logger  *zap.Logger
}

func NewBatchRevoker(revoker Revoker, pacer Pacer, logger *zap.Logger) *BatchRevoker {
	if pacer == nil {
		pacer = FixedDelayPacer{Delay: DefaultBatchDelay}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchRevoker{Revoker: revoker, Pacer: pacer, Logger: logger}
}

// Revoke always returns one result per request, in request order.
func (b *BatchRevoker) Revoke(ctx context.Context, requests []domain.RevocationRequest) domain.BatchResult {
	result := domain.BatchResult{Results: make([]domain.RevocationResponse, len(requests))}
	for i, req := range requests {
		if i > 0 {
			if err := b.Pacer.Wait(ctx); err != nil {
				b.Logger.Warn("batch revoke interrupted", zap.Int("processed", i), zap.Int("total", len(requests)), zap.Error(err))
				for j := i; j < len(requests); j++ {
					result.Results[j] = domain.RevocationResponse{
						Message: fmt.Sprintf("Batch cancelled before processing: %v", err),
						Error:   err,
					}
					result.Failed++
				}
				return result
			}
		}
		resp := b.Revoker.Revoke(ctx, req)
		result.Results[i] = resp
		if resp.Success {
			result.Success++
		} else {
			result.Failed++
		}
	}
	b.Logger.Info("batch revoke finished", zap.Int("success", result.Success), zap.Int("failed", result.Failed))
	return result
}

// FixedDelayPacer sleeps for Delay on every Wait.
type FixedDelayPacer struct {
	Delay time.Duration
}

func (p FixedDelayPacer) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
