package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"certledger/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	routeRevoke      = "revoke"
	routeReinstate   = "reinstate"
	routeRevokeBatch = "revoke:batch"
	routeVerify      = "verify"
)

// enforceRateLimit counts the request against the actor, or the client IP
// for anonymous routes.
func (s *Server) enforceRateLimit(c *gin.Context, routeID string, principal domain.Principal) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	key := fmt.Sprintf("route:%s:ip:%s", routeID, c.ClientIP())
	if !principal.IsZero() {
		key = fmt.Sprintf("route:%s:actor:%d", routeID, principal.ActorID)
	}
	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		s.logger.Warn("rate limiter unavailable", zap.String("route", routeID), zap.Error(err))
		if s.rateLimitFailOpen {
			return true
		}
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
		return false
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if decision.ResetAt.IsZero() {
		return
	}
	c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	if !decision.Allowed {
		c.Header("Retry-After", strconv.Itoa(decision.RetryAfter(time.Now())))
	}
}
