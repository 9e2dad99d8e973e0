package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_UnknownToken(t *testing.T) {
	v := NewVerifier(newStubCertRepo(), newStubLedger(), nil)
	out, err := v.Verify(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.False(t, out.Exists)
}

func TestVerifier_RevokedAndInSync(t *testing.T) {
	cert := activeCert()
	cert.Revoked = true
	cert.RevokedReason = "fraud"
	cert.RevokedAt = &testNow
	ledger := newStubLedger()
	ledger.onChain["ABC123"] = true

	out, err := NewVerifier(newStubCertRepo(cert), ledger, nil).Verify(context.Background(), "ABC123")

	require.NoError(t, err)
	assert.True(t, out.Exists)
	assert.True(t, out.Revoked)
	assert.Equal(t, "fraud", out.RevocationReason)
	require.NotNil(t, out.OnChainRevoked)
	assert.True(t, *out.OnChainRevoked)
	assert.True(t, out.InSync)
}

func TestVerifier_LedgerUnavailable(t *testing.T) {
	ledger := newStubLedger()
	ledger.statusErr["ABC123"] = errors.New("timeout")

	out, err := NewVerifier(newStubCertRepo(activeCert()), ledger, nil).Verify(context.Background(), "ABC123")

	require.NoError(t, err)
	assert.True(t, out.Exists)
	assert.Nil(t, out.OnChainRevoked)
	assert.False(t, out.InSync)
}
