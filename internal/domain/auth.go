package domain

import (
	"context"
	"strconv"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleIssuer Role = "issuer"
)

// Principal is the authenticated actor as asserted by the session provider.
type Principal struct {
	ActorID int64
	Role    Role
}

func (p Principal) IsZero() bool {
	return p.ActorID == 0
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (p Principal) Subject() string {
	return strconv.FormatInt(p.ActorID, 10)
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Principal, error)
}

// Permission names checked by Authorizer implementations.
const (
	PermRevoke      = "revoke"
	PermReinstate   = "reinstate"
	PermRevokeBatch = "revoke:batch"
	PermHistoryRead = "history:read"
	PermLogsRead    = "logs:read"
	PermReportRead  = "report:read"
	PermSyncRun     = "sync:run"
	PermSyncRead    = "sync:read"
)

// Resource carries the attributes of the object a permission is checked
// against. IssuerID is zero for collection-level permissions.
type Resource struct {
	CertificateID int64
	IssuerID      int64
}

type Authorizer interface {
	Authorize(ctx context.Context, principal Principal, permission string, resource Resource) error
}
