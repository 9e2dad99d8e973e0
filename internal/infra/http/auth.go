package http

import (
	"errors"
	"net/http"
	"strings"

	"certledger/internal/domain"
	"certledger/internal/infra/auth/rbac"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalContextKey = "principal"

// authenticate resolves the caller and stores it on the context. It writes
// the error response itself and returns false when the request must stop.
func (s *Server) authenticate(c *gin.Context) (domain.Principal, bool) {
	if s.authInitErr != nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		return domain.Principal{}, false
	}
	var (
		principal domain.Principal
		err       error
	)
	switch {
	case s.headerAuth != nil:
		principal, err = s.headerAuth.FromHeaders(c.Request.Header)
	case s.authenticator != nil:
		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return domain.Principal{}, false
		}
		principal, err = s.authenticator.Authenticate(c.Request.Context(), token)
	}
	if err != nil {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return domain.Principal{}, false
	}
	if principal.IsZero() {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return domain.Principal{}, false
	}
	c.Set(principalContextKey, principal)
	return principal, true
}

// authorize checks permission for principal. deniedMessage replaces the
// generic 403 message when set.
func (s *Server) authorize(c *gin.Context, principal domain.Principal, permission string, resource domain.Resource, deniedMessage string) bool {
	if s.authorizer == nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		return false
	}
	err := s.authorizer.Authorize(c.Request.Context(), principal, permission, resource)
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return false
	}
	code := "FORBIDDEN"
	if authz, ok := rbac.IsAuthzError(err); ok && authz.Code != "" {
		code = authz.Code
	} else if !errors.Is(err, domain.ErrForbidden) {
		s.logger.Error("authorization failed", zap.String("permission", permission), zap.Error(err))
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "authorization failed")
		return false
	}
	if deniedMessage == "" {
		deniedMessage = "forbidden"
	}
	writeErrorCode(c, http.StatusForbidden, code, deniedMessage)
	return false
}

// requirePermission authenticates and checks a collection-level permission.
func (s *Server) requirePermission(c *gin.Context, permission string) (domain.Principal, bool) {
	principal, ok := s.authenticate(c)
	if !ok {
		return domain.Principal{}, false
	}
	if !s.authorize(c, principal, permission, domain.Resource{}, "") {
		return domain.Principal{}, false
	}
	return principal, true
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if len(value) < len("bearer ") || !strings.EqualFold(value[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}

func getPrincipal(c *gin.Context) (domain.Principal, bool) {
	raw, ok := c.Get(principalContextKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := raw.(domain.Principal)
	return principal, ok
}
