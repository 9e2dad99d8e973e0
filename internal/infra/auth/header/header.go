// Package header trusts actor identity from request headers. It exists for
// local development behind a trusted proxy and is refused outside ENV=dev.
package header

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"certledger/internal/domain"
)

const (
	ActorIDHeader   = "X-Actor-Id"
	ActorRoleHeader = "X-Actor-Role"
)

type Authenticator struct{}

func NewAuthenticator() *Authenticator {
	return &Authenticator{}
}

// FromHeaders returns the zero principal when no actor header is present.
func (Authenticator) FromHeaders(h http.Header) (domain.Principal, error) {
	rawID := strings.TrimSpace(h.Get(ActorIDHeader))
	if rawID == "" {
		return domain.Principal{}, nil
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return domain.Principal{}, fmt.Errorf("%w: invalid %s", domain.ErrUnauthorized, ActorIDHeader)
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(h.Get(ActorRoleHeader))))
	if role != domain.RoleAdmin && role != domain.RoleIssuer {
		return domain.Principal{}, fmt.Errorf("%w: invalid %s", domain.ErrUnauthorized, ActorRoleHeader)
	}
	return domain.Principal{ActorID: id, Role: role}, nil
}
