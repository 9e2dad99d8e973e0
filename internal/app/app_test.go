package app

import (
	"context"
	"testing"
	"time"

	"certledger/internal/config"
	"certledger/internal/domain"
	"certledger/internal/infra/ratelimit"
	"certledger/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Env:            "dev",
		DBDriver:       "sqlite",
		DBDSN:          "file:app_build?mode=memory&cache=shared&_pragma=foreign_keys(1)",
		DBAutoMigrate:  true,
		LedgerMode:     "memory",
		RateLimitMode:  "memory",
		SyncBatchLimit: 10,
	}
}

func TestBuild_WiresServices(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, testConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	_, isMemory := a.RateLimiter.(*ratelimit.MemoryLimiter)
	assert.True(t, isMemory)
	_, isFixed := a.Batch.Pacer.(usecase.FixedDelayPacer)
	assert.True(t, isFixed)
	assert.Nil(t, a.Revocations.Publisher)
	assert.Nil(t, a.Reconciler.Locker)
	assert.Equal(t, 10, a.Reconciler.BatchLimit)

	_, err = a.Store.Admins.CreateAdmin(ctx, domain.Admin{ID: 1, Name: "Root", Role: domain.RoleAdmin})
	require.NoError(t, err)
	_, err = a.Store.Certificates.CreateCertificate(ctx, domain.Certificate{ID: 5, TokenAddress: "TOK5", Title: "Diploma", IssuerID: 1})
	require.NoError(t, err)

	resp := a.Revocations.Revoke(ctx, domain.RevocationRequest{CertificateID: 5, Reason: "fraud", AdminID: 1})
	require.True(t, resp.Success, resp.Message)
	assert.False(t, resp.OnChainPending)

	v, err := a.Verifier.Verify(ctx, "TOK5")
	require.NoError(t, err)
	assert.True(t, v.InSync)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "certledger_transitions_total")
	assert.Contains(t, names, "certledger_ledger_breaker_state")
	require.NotNil(t, a.LedgerState)
	assert.Equal(t, "closed", a.LedgerState())
}

func TestBuild_VerifyCacheFollowsTransitions(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.DBDSN = "file:app_cache?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	cfg.LedgerStatusCacheTTL = 30 * time.Second
	a, err := Build(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	_, err = a.Store.Admins.CreateAdmin(ctx, domain.Admin{ID: 1, Name: "Root", Role: domain.RoleAdmin})
	require.NoError(t, err)
	_, err = a.Store.Certificates.CreateCertificate(ctx, domain.Certificate{ID: 6, TokenAddress: "TOK6", Title: "Diploma", IssuerID: 1})
	require.NoError(t, err)

	v, err := a.Verifier.Verify(ctx, "TOK6")
	require.NoError(t, err)
	require.NotNil(t, v.OnChainRevoked)
	assert.False(t, *v.OnChainRevoked)

	resp := a.Revocations.Revoke(ctx, domain.RevocationRequest{CertificateID: 6, Reason: "fraud", AdminID: 1})
	require.True(t, resp.Success, resp.Message)
	require.False(t, resp.OnChainPending)

	v, err = a.Verifier.Verify(ctx, "TOK6")
	require.NoError(t, err)
	require.NotNil(t, v.OnChainRevoked)
	assert.True(t, *v.OnChainRevoked)
	assert.True(t, v.InSync)

	resp = a.Revocations.Reinstate(ctx, domain.RevocationRequest{CertificateID: 6, Reason: "appeal", AdminID: 1})
	require.True(t, resp.Success, resp.Message)

	v, err = a.Verifier.Verify(ctx, "TOK6")
	require.NoError(t, err)
	assert.False(t, *v.OnChainRevoked)
	assert.True(t, v.InSync)
}

func TestBuild_RatePacer(t *testing.T) {
	cfg := testConfig()
	cfg.DBDSN = "file:app_pacer?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	cfg.BatchRate = 5
	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Batch.Pacer.(*ratelimit.RatePacer)
	assert.True(t, ok)
}

func TestBuild_RedisModeNeedsAddress(t *testing.T) {
	cfg := testConfig()
	cfg.DBDSN = "file:app_redis?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	cfg.RateLimitMode = "redis"
	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "REDIS_ADDR")
}
