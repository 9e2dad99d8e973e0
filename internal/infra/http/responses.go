package http

import (
	"errors"
	"net/http"
	"time"

	"certledger/internal/domain"
	"certledger/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type transitionRequest struct {
	NFTAddress string `json:"nftAddress"`
	Reason     string `json:"reason"`
}

type batchRequest struct {
	Requests []batchItem `json:"requests"`
}

type batchItem struct {
	CertificateID int64  `json:"certificateId"`
	Reason        string `json:"reason"`
}

type certificateSummary struct {
	ID          int64  `json:"id"`
	NFTAddress  string `json:"nftAddress"`
	Title       string `json:"title,omitempty"`
	Revoked     bool   `json:"revoked"`
	MetadataURI string `json:"metadataUri,omitempty"`
}

type revocationDetail struct {
	ID                   int64      `json:"id"`
	Reason               string     `json:"reason"`
	RevokedAt            *time.Time `json:"revokedAt,omitempty"`
	RevokedBy            int64      `json:"revokedBy"`
	TransactionSignature string     `json:"transactionSignature,omitempty"`
	OnChainPending       bool       `json:"onChainPending"`
}

type reinstatementDetail struct {
	ID                   int64      `json:"id"`
	Reason               string     `json:"reason"`
	ReinstatedAt         *time.Time `json:"reinstatedAt,omitempty"`
	ReinstatedBy         int64      `json:"reinstatedBy"`
	TransactionSignature string     `json:"transactionSignature,omitempty"`
	OnChainPending       bool       `json:"onChainPending"`
}

type batchItemResponse struct {
	CertificateID        int64  `json:"certificateId"`
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	TransactionSignature string `json:"transactionSignature,omitempty"`
	OnChainPending       bool   `json:"onChainPending"`
}

type batchResponse struct {
	Success   bool                `json:"success"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Results   []batchItemResponse `json:"results"`
}

type historyEntry struct {
	ID        int64     `json:"id"`
	EventType string    `json:"eventType"`
	Reason    string    `json:"reason"`
	ActorID   int64     `json:"actorId"`
	LogID     int64     `json:"logId"`
	CreatedAt time.Time `json:"createdAt"`
}

type verificationResponse struct {
	NFTAddress       string     `json:"nftAddress"`
	Exists           bool       `json:"exists"`
	Revoked          bool       `json:"revoked"`
	RevocationReason string     `json:"revocationReason,omitempty"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	OnChainRevoked   *bool      `json:"onChainRevoked"`
	InSync           bool       `json:"inSync"`
}

type adminSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type logEntry struct {
	ID                   int64               `json:"id"`
	ActionType           string              `json:"actionType"`
	CertificateID        int64               `json:"certificateId"`
	NFTAddress           string              `json:"nftAddress"`
	Reason               string              `json:"reason"`
	AdminID              int64               `json:"adminId"`
	TransactionSignature string              `json:"transactionSignature,omitempty"`
	Metadata             domain.LogMetadata  `json:"metadata"`
	CreatedAt            time.Time           `json:"createdAt"`
	Certificate          *certificateSummary `json:"certificate,omitempty"`
	Admin                *adminSummary       `json:"admin,omitempty"`
}

type adminActivity struct {
	AdminID int64  `json:"adminId"`
	Name    string `json:"name,omitempty"`
	Count   int    `json:"count"`
}

type reportResponse struct {
	Period struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"period"`
	GeneratedAt time.Time `json:"generatedAt"`
	Stats       struct {
		TotalRevocations    int            `json:"totalRevocations"`
		TotalReinstatements int            `json:"totalReinstatements"`
		UniqueAdmins        int            `json:"uniqueAdmins"`
		MostActiveAdmin     *adminActivity `json:"mostActiveAdmin"`
	} `json:"stats"`
	Daily          []dailyEntry `json:"dailyBreakdown"`
	Revocations    []logEntry   `json:"revocations"`
	Reinstatements []logEntry   `json:"reinstatements"`
}

type dailyEntry struct {
	Date           string `json:"date"`
	Revocations    int    `json:"revocations"`
	Reinstatements int    `json:"reinstatements"`
	Total          int    `json:"total"`
}

type syncStatusEntry struct {
	NFTAddress      string     `json:"nftAddress"`
	CertificateID   int64      `json:"certificateId"`
	OffChainRevoked bool       `json:"offChainRevoked"`
	OnChainRevoked  bool       `json:"onChainRevoked"`
	NeedsSync       bool       `json:"needsSync"`
	SyncAttempts    int        `json:"syncAttempts"`
	LastError       *string    `json:"lastError"`
	LastSyncAt      *time.Time `json:"lastSyncAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type syncOutcomeEntry struct {
	NFTAddress string     `json:"nftAddress"`
	Success    bool       `json:"success"`
	Action     string     `json:"action"`
	SyncedAt   *time.Time `json:"syncedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func buildCertificateSummary(cert domain.Certificate) certificateSummary {
	return certificateSummary{
		ID:          cert.ID,
		NFTAddress:  cert.TokenAddress,
		Title:       cert.Title,
		Revoked:     cert.Revoked,
		MetadataURI: cert.MetadataURI,
	}
}

func buildLogEntry(l domain.RevocationLog) logEntry {
	out := logEntry{
		ID:                   l.ID,
		ActionType:           string(l.ActionType),
		CertificateID:        l.CertificateID,
		NFTAddress:           l.TokenAddress,
		Reason:               l.Reason,
		AdminID:              l.AdminID,
		TransactionSignature: l.TransactionSignature,
		Metadata:             l.Metadata,
		CreatedAt:            l.CreatedAt,
	}
	if l.Certificate != nil {
		cert := buildCertificateSummary(*l.Certificate)
		out.Certificate = &cert
	}
	if l.Admin != nil {
		out.Admin = &adminSummary{ID: l.Admin.ID, Name: l.Admin.Name, Email: l.Admin.Email}
	}
	return out
}

func buildLogEntries(logs []domain.RevocationLog) []logEntry {
	out := make([]logEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, buildLogEntry(l))
	}
	return out
}

func buildHistory(history []domain.RevocationHistory) []historyEntry {
	out := make([]historyEntry, 0, len(history))
	for _, h := range history {
		out = append(out, historyEntry{
			ID:        h.ID,
			EventType: string(h.EventType),
			Reason:    h.Reason,
			ActorID:   h.ActorID,
			LogID:     h.LogID,
			CreatedAt: h.CreatedAt,
		})
	}
	return out
}

func buildReportResponse(report domain.RevocationReport) reportResponse {
	var out reportResponse
	out.Period.Start = report.Period.Start
	out.Period.End = report.Period.End
	out.GeneratedAt = report.GeneratedAt
	out.Stats.TotalRevocations = report.Stats.TotalRevocations
	out.Stats.TotalReinstatements = report.Stats.TotalReinstatements
	out.Stats.UniqueAdmins = report.Stats.UniqueAdmins
	if a := report.Stats.MostActiveAdmin; a != nil {
		out.Stats.MostActiveAdmin = &adminActivity{AdminID: a.AdminID, Name: a.Name, Count: a.Count}
	}
	out.Daily = make([]dailyEntry, 0, len(report.Daily))
	for _, d := range report.Daily {
		out.Daily = append(out.Daily, dailyEntry(d))
	}
	out.Revocations = buildLogEntries(report.Revocations)
	out.Reinstatements = buildLogEntries(report.Reinstatements)
	return out
}

func buildSyncStatuses(rows []domain.RegistrySyncStatus) []syncStatusEntry {
	out := make([]syncStatusEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, syncStatusEntry{
			NFTAddress:      r.TokenAddress,
			CertificateID:   r.CertificateID,
			OffChainRevoked: r.OffChainRevoked,
			OnChainRevoked:  r.OnChainRevoked,
			NeedsSync:       r.NeedsSync,
			SyncAttempts:    r.SyncAttempts,
			LastError:       r.LastError,
			LastSyncAt:      r.LastSyncAt,
			UpdatedAt:       r.UpdatedAt,
		})
	}
	return out
}

func buildSyncOutcomes(outcomes []domain.SyncOutcome) []syncOutcomeEntry {
	out := make([]syncOutcomeEntry, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, syncOutcomeEntry{
			NFTAddress: o.TokenAddress,
			Success:    o.Success,
			Action:     string(o.Action),
			SyncedAt:   o.SyncedAt,
			Error:      o.Error,
		})
	}
	return out
}

func writeError(c *gin.Context, err error) {
	writeErrorMessage(c, err, err.Error())
}

// writeErrorMessage maps err to a status and code but keeps message as the
// client-facing text.
func writeErrorMessage(c *gin.Context, err error, message string) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrAlreadyRevoked):
		status, code = http.StatusBadRequest, "ALREADY_REVOKED"
	case errors.Is(err, domain.ErrNotRevoked):
		status, code = http.StatusBadRequest, "NOT_REVOKED"
	case errors.Is(err, domain.ErrInvalidRequest):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrRateLimited):
		status, code = http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, usecase.ErrSyncInProgress):
		status, code = http.StatusConflict, "SYNC_IN_PROGRESS"
	case errors.Is(err, domain.ErrLedgerUnavailable):
		status, code = http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE"
	}
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeErrorCode(c, status, code, message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		Success: false,
		Error:   errorBody{Code: code, Message: message},
	})
}
