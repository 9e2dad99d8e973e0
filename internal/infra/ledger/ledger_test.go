package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"certledger/internal/config"
	"certledger/internal/domain"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RevokeIsIdempotentPerCorrelationID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first, err := m.Revoke(ctx, "ABC123", "r", "CERT-42")
	require.NoError(t, err)
	again, err := m.Revoke(ctx, "ABC123", "r", "CERT-42")
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, again.TransactionID)

	_, err = m.Reinstate(ctx, "ABC123", "appeal")
	require.NoError(t, err)
	status, err := m.CheckStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.False(t, status.Revoked)

	third, err := m.Revoke(ctx, "ABC123", "r", "CERT-42")
	require.NoError(t, err)
	assert.NotEqual(t, first.TransactionID, third.TransactionID)
	status, err = m.CheckStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, status.Revoked)
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().Revoke(ctx, "ABC123", "r", "")
	assert.ErrorIs(t, err, context.Canceled)
}

type flakyLedger struct {
	*Memory
	failures int
	calls    int
	reject   bool
}

func (f *flakyLedger) Revoke(ctx context.Context, token, reason, correlationID string) (domain.LedgerReceipt, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return domain.LedgerReceipt{}, errors.New("RPC timeout")
	}
	if f.reject {
		return domain.LedgerReceipt{Success: false, TransactionID: "0xdead"}, nil
	}
	return domain.LedgerReceipt{Success: true, TransactionID: "0xbeef"}, nil
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	inner := &flakyLedger{Memory: NewMemory(), failures: 2}
	b := NewBreaker(inner, BreakerConfig{ConsecutiveFailures: 2, Cooldown: time.Hour}, nil)

	for i := 0; i < 2; i++ {
		_, err := b.Revoke(ctx, "ABC123", "r", "CERT-42")
		require.EqualError(t, err, "RPC timeout")
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Revoke(ctx, "ABC123", "r", "CERT-42")
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the ledger")
}

func TestBreaker_RejectedReceiptIsNotAFailure(t *testing.T) {
	inner := &flakyLedger{Memory: NewMemory(), reject: true}
	b := NewBreaker(inner, BreakerConfig{ConsecutiveFailures: 1}, nil)

	for i := 0; i < 3; i++ {
		receipt, err := b.Revoke(context.Background(), "ABC123", "r", "CERT-42")
		require.NoError(t, err)
		assert.False(t, receipt.Success)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

type countingStatus struct {
	*Memory
	checks int
}

func (c *countingStatus) CheckStatus(ctx context.Context, token string) (domain.LedgerStatus, error) {
	c.checks++
	return c.Memory.CheckStatus(ctx, token)
}

func TestStatusCache_ExpiresAndInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	inner := &countingStatus{Memory: NewMemory()}
	cache := NewStatusCache(inner, time.Minute)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_, err := cache.CheckStatus(ctx, "ABC123")
	require.NoError(t, err)
	_, err = cache.CheckStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.checks)

	_, err = cache.Revoke(ctx, "ABC123", "r", "CERT-42")
	require.NoError(t, err)
	status, err := cache.CheckStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, status.Revoked)
	assert.Equal(t, 2, inner.checks)

	inner.Set("ABC123", false)
	now = now.Add(2 * time.Minute)
	status, err = cache.CheckStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.False(t, status.Revoked)
	assert.Equal(t, 3, inner.checks)
}

func TestStatusCache_UncachedReadsThroughAndRefreshes(t *testing.T) {
	ctx := context.Background()
	inner := &countingStatus{Memory: NewMemory()}
	cache := NewStatusCache(inner, time.Minute)
	direct := cache.Uncached()

	status, err := cache.CheckStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.False(t, status.Revoked)

	// A write through the direct view still drops the cached entry.
	_, err = direct.Revoke(ctx, "ABC123", "Sync revocation", "CERT-42")
	require.NoError(t, err)
	status, err = cache.CheckStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, status.Revoked)
	assert.Equal(t, 2, inner.checks)

	inner.Set("ABC123", false)
	status, err = direct.CheckStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.False(t, status.Revoked)
	assert.Equal(t, 3, inner.checks)

	status, err = cache.CheckStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.False(t, status.Revoked)
	assert.Equal(t, 4, inner.checks)
}

func TestFromConfig(t *testing.T) {
	gw, closeFn, err := FromConfig(context.Background(), config.Config{LedgerMode: "memory"}, nil)
	require.NoError(t, err)
	defer closeFn()
	_, ok := gw.(*Breaker)
	assert.True(t, ok)

	_, _, err = FromConfig(context.Background(), config.Config{LedgerMode: "carrier-pigeon"}, nil)
	assert.ErrorContains(t, err, "unsupported ledger mode")
}
