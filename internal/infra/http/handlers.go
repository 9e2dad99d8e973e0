package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"certledger/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxBatchSize = 100

type transitionKind struct {
	route         string
	permission    string
	deniedMessage string
	stateErr      error
	stateMessage  string
	revoked       bool
}

var (
	revokeKind = transitionKind{
		route:         routeRevoke,
		permission:    domain.PermRevoke,
		deniedMessage: "Only the issuer or admin can revoke this certificate",
		stateErr:      domain.ErrAlreadyRevoked,
		stateMessage:  "Certificate already revoked",
		revoked:       true,
	}
	reinstateKind = transitionKind{
		route:         routeReinstate,
		permission:    domain.PermReinstate,
		deniedMessage: "Only the issuer or admin can reinstate this certificate",
		stateErr:      domain.ErrNotRevoked,
		stateMessage:  "Certificate is not revoked",
		revoked:       false,
	}
)

func (s *Server) handleRevoke(c *gin.Context) {
	s.handleTransition(c, revokeKind)
}

func (s *Server) handleReinstate(c *gin.Context) {
	s.handleTransition(c, reinstateKind)
}

func (s *Server) handleTransition(c *gin.Context, kind transitionKind) {
	principal, ok := s.authenticate(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	req.NFTAddress = strings.TrimSpace(req.NFTAddress)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.NFTAddress == "" || req.Reason == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "NFT address and reason are required")
		return
	}
	if !s.enforceRateLimit(c, kind.route, principal) {
		return
	}
	if s.revocations == nil || s.certificates == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "revocation service is not configured")
		return
	}
	cert, err := s.certificates.GetCertificateByTokenAddress(c.Request.Context(), req.NFTAddress)
	if errors.Is(err, domain.ErrNotFound) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "Certificate not found with this NFT address")
		return
	}
	if err != nil {
		s.logger.Error("load certificate", zap.String("token", req.NFTAddress), zap.Error(err))
		writeError(c, err)
		return
	}
	if !s.authorize(c, principal, kind.permission, domain.Resource{CertificateID: cert.ID, IssuerID: cert.IssuerID}, kind.deniedMessage) {
		return
	}
	if cert.Revoked == kind.revoked {
		writeErrorMessage(c, kind.stateErr, kind.stateMessage)
		return
	}

	serviceReq := domain.RevocationRequest{
		CertificateID: cert.ID,
		Reason:        req.Reason,
		AdminID:       principal.ActorID,
		Context: domain.RequestContext{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		},
	}
	var resp domain.RevocationResponse
	if kind.revoked {
		resp = s.revocations.Revoke(c.Request.Context(), serviceReq)
	} else {
		resp = s.revocations.Reinstate(c.Request.Context(), serviceReq)
	}
	if !resp.Success {
		writeErrorMessage(c, resp.Error, resp.Message)
		return
	}
	if resp.Certificate != nil {
		cert = *resp.Certificate
	}

	data := gin.H{"certificate": buildCertificateSummary(cert)}
	if kind.revoked {
		data["revocation"] = revocationDetail{
			ID:                   resp.LogID,
			Reason:               req.Reason,
			RevokedAt:            cert.RevokedAt,
			RevokedBy:            principal.ActorID,
			TransactionSignature: resp.TransactionID,
			OnChainPending:       resp.OnChainPending,
		}
	} else {
		data["reinstatement"] = reinstatementDetail{
			ID:                   resp.LogID,
			Reason:               req.Reason,
			ReinstatedAt:         cert.ReinstatedAt,
			ReinstatedBy:         principal.ActorID,
			TransactionSignature: resp.TransactionID,
			OnChainPending:       resp.OnChainPending,
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": resp.Message, "data": data})
}

func (s *Server) handleBatchRevoke(c *gin.Context) {
	principal, ok := s.requirePermission(c, domain.PermRevokeBatch)
	if !ok {
		return
	}
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if len(req.Requests) == 0 {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "requests must not be empty")
		return
	}
	if len(req.Requests) > maxBatchSize {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("at most %d requests per batch", maxBatchSize))
		return
	}
	if !s.enforceRateLimit(c, routeRevokeBatch, principal) {
		return
	}
	if s.batch == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "batch revocation is not configured")
		return
	}

	reqCtx := domain.RequestContext{IPAddress: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	requests := make([]domain.RevocationRequest, 0, len(req.Requests))
	for _, item := range req.Requests {
		requests = append(requests, domain.RevocationRequest{
			CertificateID: item.CertificateID,
			Reason:        item.Reason,
			AdminID:       principal.ActorID,
			Context:       reqCtx,
		})
	}
	result := s.batch.Revoke(c.Request.Context(), requests)

	out := batchResponse{
		Success:   result.Failed == 0,
		Succeeded: result.Success,
		Failed:    result.Failed,
		Results:   make([]batchItemResponse, 0, len(result.Results)),
	}
	for i, r := range result.Results {
		out.Results = append(out.Results, batchItemResponse{
			CertificateID:        req.Requests[i].CertificateID,
			Success:              r.Success,
			Message:              r.Message,
			TransactionSignature: r.TransactionID,
			OnChainPending:       r.OnChainPending,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleHistory(c *gin.Context) {
	principal, ok := s.authenticate(c)
	if !ok {
		return
	}
	if s.queries == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "history is not configured")
		return
	}
	token := strings.TrimSpace(c.Param("nftAddress"))
	cert, history, err := s.queries.HistoryByToken(c.Request.Context(), token)
	if errors.Is(err, domain.ErrNotFound) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "Certificate not found with this NFT address")
		return
	}
	if err != nil {
		s.logger.Error("load revocation history", zap.String("token", token), zap.Error(err))
		writeError(c, err)
		return
	}
	if !s.authorize(c, principal, domain.PermHistoryRead, domain.Resource{CertificateID: cert.ID, IssuerID: cert.IssuerID}, "") {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"certificate": buildCertificateSummary(cert),
		"history":     buildHistory(history),
	})
}

func (s *Server) handleVerify(c *gin.Context) {
	if !s.enforceRateLimit(c, routeVerify, domain.Principal{}) {
		return
	}
	if s.verifier == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "verification is not configured")
		return
	}
	token := strings.TrimSpace(c.Param("nftAddress"))
	v, err := s.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		s.logger.Error("verify certificate", zap.String("token", token), zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"verification": verificationResponse{
			NFTAddress:       v.TokenAddress,
			Exists:           v.Exists,
			Revoked:          v.Revoked,
			RevocationReason: v.RevocationReason,
			RevokedAt:        v.RevokedAt,
			OnChainRevoked:   v.OnChainRevoked,
			InSync:           v.InSync,
		},
	})
}

func (s *Server) handleLogs(c *gin.Context) {
	if _, ok := s.requirePermission(c, domain.PermLogsRead); !ok {
		return
	}
	if s.queries == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "revocation logs are not configured")
		return
	}
	filter, err := parseLogFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := s.queries.Logs(c.Request.Context(), filter)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidRequest) {
			s.logger.Error("list revocation logs", zap.Error(err))
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"logs":    buildLogEntries(page.Logs),
		"total":   page.Total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

func (s *Server) handleReport(c *gin.Context) {
	if _, ok := s.requirePermission(c, domain.PermReportRead); !ok {
		return
	}
	if s.reports == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "reporting is not configured")
		return
	}
	start, err := parseDate(c.Query("startDate"), false)
	if err != nil {
		writeError(c, err)
		return
	}
	end, err := parseDate(c.Query("endDate"), true)
	if err != nil {
		writeError(c, err)
		return
	}
	if start == nil || end == nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "startDate and endDate are required")
		return
	}
	report, err := s.reports.Generate(c.Request.Context(), *start, *end)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidRequest) {
			s.logger.Error("generate revocation report", zap.Error(err))
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": buildReportResponse(report)})
}

func (s *Server) handleSync(c *gin.Context) {
	if _, ok := s.requirePermission(c, domain.PermSyncRun); !ok {
		return
	}
	if s.reconciler == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "sync is not configured")
		return
	}
	outcomes, err := s.reconciler.Reconcile(c.Request.Context())
	if err != nil {
		s.logger.Warn("manual sync failed", zap.Error(err))
		writeError(c, err)
		return
	}
	synced := 0
	for _, o := range outcomes {
		if o.Success {
			synced++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  fmt.Sprintf("Synced %d of %d certificates", synced, len(outcomes)),
		"outcomes": buildSyncOutcomes(outcomes),
	})
}

func (s *Server) handleSyncStatus(c *gin.Context) {
	if _, ok := s.requirePermission(c, domain.PermSyncRead); !ok {
		return
	}
	if s.queries == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "sync status is not configured")
		return
	}
	needsSync := false
	if raw := c.Query("needsSync"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "needsSync must be a boolean")
			return
		}
		needsSync = v
	}
	rows, err := s.queries.SyncStatuses(c.Request.Context(), needsSync)
	if err != nil {
		s.logger.Error("list sync statuses", zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "statuses": buildSyncStatuses(rows), "count": len(rows)})
}

func parseLogFilter(c *gin.Context) (domain.LogFilter, error) {
	var filter domain.LogFilter
	var err error
	if filter.Start, err = parseDate(c.Query("startDate"), false); err != nil {
		return filter, err
	}
	if filter.End, err = parseDate(c.Query("endDate"), true); err != nil {
		return filter, err
	}
	if raw := c.Query("adminId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return filter, fmt.Errorf("%w: adminId must be a positive integer", domain.ErrInvalidRequest)
		}
		filter.AdminID = &id
	}
	filter.ActionType = domain.ActionType(strings.ToUpper(strings.TrimSpace(c.Query("actionType"))))
	if filter.Limit, err = parseNonNegative(c.Query("limit"), "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = parseNonNegative(c.Query("offset"), "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseNonNegative(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidRequest, name)
	}
	return n, nil
}

// parseDate accepts RFC 3339 timestamps or bare dates. A bare end date
// covers the whole UTC day.
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(domain.ReportDateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", domain.ErrInvalidRequest, raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
