package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"certledger/internal/domain"
	"certledger/internal/usecase"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker. Zero means 5.
	ConsecutiveFailures uint32
	// Cooldown is how long the breaker stays open before a trial call. Zero means 30s.
	Cooldown time.Duration
}

// Breaker stops calling a failing ledger for a cooldown period. While open,
// calls fail fast with domain.ErrLedgerUnavailable so the saga records a
// pending sync without waiting for the full ledger timeout.
type Breaker struct {
	next usecase.LedgerGateway
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next usecase.LedgerGateway, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ledger",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ledger circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) Revoke(ctx context.Context, tokenAddress, reason, correlationID string) (domain.LedgerReceipt, error) {
	return b.write(func() (domain.LedgerReceipt, error) {
		return b.next.Revoke(ctx, tokenAddress, reason, correlationID)
	})
}

func (b *Breaker) Reinstate(ctx context.Context, tokenAddress, reason string) (domain.LedgerReceipt, error) {
	return b.write(func() (domain.LedgerReceipt, error) {
		return b.next.Reinstate(ctx, tokenAddress, reason)
	})
}

func (b *Breaker) CheckStatus(ctx context.Context, tokenAddress string) (domain.LedgerStatus, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.CheckStatus(ctx, tokenAddress)
	})
	if err != nil {
		return domain.LedgerStatus{}, mapBreakerErr(err)
	}
	return out.(domain.LedgerStatus), nil
}

// A mined but reverted write is a healthy ledger and does not count
// against the breaker.
func (b *Breaker) write(call func() (domain.LedgerReceipt, error)) (domain.LedgerReceipt, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return call()
	})
	if err != nil {
		return domain.LedgerReceipt{}, mapBreakerErr(err)
	}
	return out.(domain.LedgerReceipt), nil
}

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return err
}

var _ usecase.LedgerGateway = (*Breaker)(nil)
