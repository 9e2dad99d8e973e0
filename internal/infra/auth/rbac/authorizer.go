package rbac

import (
	"context"
	"errors"

	"certledger/internal/domain"
)

// AuthzError is a denial with a machine readable code. It unwraps to
// domain.ErrForbidden.
type AuthzError struct {
	Code string
	Err  error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *AuthzError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

const (
	CodeAdminRequired     = "ADMIN_REQUIRED"
	CodeNotIssuer         = "NOT_ISSUER"
	CodeUnknownPermission = "UNKNOWN_PERMISSION"
)

var adminOnly = map[string]struct{}{
	domain.PermRevokeBatch: {},
	domain.PermLogsRead:    {},
	domain.PermReportRead:  {},
	domain.PermSyncRun:     {},
	domain.PermSyncRead:    {},
}

// Authorizer applies the role table in Go. Admins may do anything; issuers
// may revoke and reinstate their own certificates and read history.
type Authorizer struct{}

func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

func (a *Authorizer) Authorize(_ context.Context, principal domain.Principal, permission string, resource domain.Resource) error {
	if principal.IsZero() {
		return domain.ErrUnauthorized
	}
	switch permission {
	case domain.PermRevoke, domain.PermReinstate:
		if principal.IsAdmin() {
			return nil
		}
		if principal.Role == domain.RoleIssuer && resource.IssuerID != 0 && resource.IssuerID == principal.ActorID {
			return nil
		}
		return deny(CodeNotIssuer)
	case domain.PermHistoryRead:
		if principal.IsAdmin() || principal.Role == domain.RoleIssuer {
			return nil
		}
		return deny(CodeNotIssuer)
	}
	if _, ok := adminOnly[permission]; !ok {
		return deny(CodeUnknownPermission)
	}
	if !principal.IsAdmin() {
		return deny(CodeAdminRequired)
	}
	return nil
}

func deny(code string) error {
	return &AuthzError{Code: code, Err: domain.ErrForbidden}
}

func IsAuthzError(err error) (*AuthzError, bool) {
	var authz *AuthzError
	if errors.As(err, &authz) {
		return authz, true
	}
	return nil, false
}

var _ domain.Authorizer = (*Authorizer)(nil)
