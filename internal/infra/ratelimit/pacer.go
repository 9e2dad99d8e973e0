package ratelimit

import (
	"context"

	"certledger/internal/usecase"

	"golang.org/x/time/rate"
)

// RatePacer caps ledger writes at perSecond with a burst of one. One pacer
// may be shared by concurrent batches; they then share the budget.
type RatePacer struct {
	limiter *rate.Limiter
}

func NewRatePacer(perSecond float64) *RatePacer {
	l := rate.NewLimiter(rate.Limit(perSecond), 1)
	// Start empty so the first gap is paced too.
	l.Allow()
	return &RatePacer{limiter: l}
}

func (p *RatePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

var _ usecase.Pacer = (*RatePacer)(nil)
