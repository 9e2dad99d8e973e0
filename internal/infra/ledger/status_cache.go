package ledger

import (
	"context"
	"sync"
	"time"

	"certledger/internal/domain"
	"certledger/internal/usecase"
)

// StatusCache memoizes CheckStatus for read paths such as public
// verification. Writes through the cache drop the token's entry.
type StatusCache struct {
	next usecase.LedgerGateway
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]statusEntry
}

type statusEntry struct {
	value     domain.LedgerStatus
	expiresAt time.Time
}

func NewStatusCache(next usecase.LedgerGateway, ttl time.Duration) *StatusCache {
	return &StatusCache{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]statusEntry),
	}
}

func (c *StatusCache) Revoke(ctx context.Context, tokenAddress, reason, correlationID string) (domain.LedgerReceipt, error) {
	defer c.invalidate(tokenAddress)
	return c.next.Revoke(ctx, tokenAddress, reason, correlationID)
}

func (c *StatusCache) Reinstate(ctx context.Context, tokenAddress, reason string) (domain.LedgerReceipt, error) {
	defer c.invalidate(tokenAddress)
	return c.next.Reinstate(ctx, tokenAddress, reason)
}

func (c *StatusCache) CheckStatus(ctx context.Context, tokenAddress string) (domain.LedgerStatus, error) {
	if c.ttl <= 0 {
		return c.next.CheckStatus(ctx, tokenAddress)
	}
	c.mu.Lock()
	entry, ok := c.entries[tokenAddress]
	if ok && c.now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.value, nil
	}
	delete(c.entries, tokenAddress)
	c.mu.Unlock()

	status, err := c.next.CheckStatus(ctx, tokenAddress)
	if err != nil {
		return domain.LedgerStatus{}, err
	}
	c.mu.Lock()
	c.entries[tokenAddress] = statusEntry{value: status, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return status, nil
}

// Uncached returns a view that reads the ledger directly but still drops
// cached entries on writes, for callers that must not act on stale status.
func (c *StatusCache) Uncached() usecase.LedgerGateway {
	return uncachedView{c}
}

type uncachedView struct {
	cache *StatusCache
}

func (u uncachedView) Revoke(ctx context.Context, tokenAddress, reason, correlationID string) (domain.LedgerReceipt, error) {
	return u.cache.Revoke(ctx, tokenAddress, reason, correlationID)
}

func (u uncachedView) Reinstate(ctx context.Context, tokenAddress, reason string) (domain.LedgerReceipt, error) {
	return u.cache.Reinstate(ctx, tokenAddress, reason)
}

func (u uncachedView) CheckStatus(ctx context.Context, tokenAddress string) (domain.LedgerStatus, error) {
	status, err := u.cache.next.CheckStatus(ctx, tokenAddress)
	if err == nil {
		u.cache.invalidate(tokenAddress)
	}
	return status, err
}

func (c *StatusCache) invalidate(tokenAddress string) {
	c.mu.Lock()
	delete(c.entries, tokenAddress)
	c.mu.Unlock()
}

var _ usecase.LedgerGateway = (*StatusCache)(nil)
