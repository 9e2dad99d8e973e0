package header

import (
	"net/http"
	"testing"

	"certledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHeaders(t *testing.T) {
	h := http.Header{}
	p, err := NewAuthenticator().FromHeaders(h)
	require.NoError(t, err)
	assert.True(t, p.IsZero())

	h.Set(ActorIDHeader, "3")
	h.Set(ActorRoleHeader, "Issuer")
	p, err = NewAuthenticator().FromHeaders(h)
	require.NoError(t, err)
	assert.Equal(t, domain.Principal{ActorID: 3, Role: domain.RoleIssuer}, p)

	h.Set(ActorRoleHeader, "root")
	_, err = NewAuthenticator().FromHeaders(h)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	h.Set(ActorIDHeader, "abc")
	_, err = NewAuthenticator().FromHeaders(h)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
