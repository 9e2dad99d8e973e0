package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

type ActionType string

const (
	ActionRevoke    ActionType = "REVOKE"
	ActionReinstate ActionType = "REINSTATE"
)

func (a ActionType) Valid() bool {
	return a == ActionRevoke || a == ActionReinstate
}

type HistoryEvent string

const (
	EventRevoked    HistoryEvent = "REVOKED"
	EventReinstated HistoryEvent = "REINSTATED"
)

func CorrelationID(certificateID int64) string {
	return "CERT-" + strconv.FormatInt(certificateID, 10)
}

// RequestContext is what the caller knows about the originating request.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// LogMetadata is the diagnostic side channel attached to a RevocationLog.
// Keys it does not model are kept in Extra and written back unchanged.
type LogMetadata struct {
	IPAddress         string
	UserAgent         string
	OnChainError      string
	OnChainPending    bool
	PinnedMetadataURI string
	Extra             map[string]any
}

const (
	metaIPAddress         = "ipAddress"
	metaUserAgent         = "userAgent"
	metaOnChainError      = "onChainError"
	metaOnChainPending    = "onChainPending"
	metaPinnedMetadataURI = "pinnedMetadataUri"
)

func (m LogMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+5)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.IPAddress != "" {
		out[metaIPAddress] = m.IPAddress
	}
	if m.UserAgent != "" {
		out[metaUserAgent] = m.UserAgent
	}
	if m.OnChainError != "" {
		out[metaOnChainError] = m.OnChainError
	}
	if m.OnChainPending {
		out[metaOnChainPending] = true
	}
	if m.PinnedMetadataURI != "" {
		out[metaPinnedMetadataURI] = m.PinnedMetadataURI
	}
	return json.Marshal(out)
}

func (m *LogMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = LogMetadata{}
	for k, v := range raw {
		switch k {
		case metaIPAddress:
			m.IPAddress, _ = v.(string)
		case metaUserAgent:
			m.UserAgent, _ = v.(string)
		case metaOnChainError:
			m.OnChainError, _ = v.(string)
		case metaOnChainPending:
			m.OnChainPending, _ = v.(bool)
		case metaPinnedMetadataURI:
			m.PinnedMetadataURI, _ = v.(string)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return nil
}

type RevocationLog struct {
	ID                   int64
	ActionType           ActionType
	CertificateID        int64
	TokenAddress         string
	Reason               string
	AdminID              int64
	TransactionSignature string
	Metadata             LogMetadata
	CreatedAt            time.Time

	Certificate *Certificate
	Admin       *Admin
}

type RevocationHistory struct {
	ID            int64
	CertificateID int64
	EventType     HistoryEvent
	Reason        string
	ActorID       int64
	LogID         int64
	CreatedAt     time.Time
}

// AuditChanges is the change set captured for compliance review.
type AuditChanges struct {
	Action        ActionType `json:"action"`
	CertificateID int64      `json:"certificateId"`
	TokenAddress  string     `json:"mintAddress"`
	Reason        string     `json:"reason"`
	Timestamp     time.Time  `json:"timestamp"`
}

type RevocationAuditTrail struct {
	ID        int64
	LogID     int64
	AdminID   int64
	IPAddress string
	UserAgent string
	Changes   AuditChanges
	CreatedAt time.Time
}

type RevocationRequest struct {
	CertificateID int64
	Reason        string
	AdminID       int64
	Context       RequestContext
}

type RevocationResponse struct {
	Success        bool
	Message        string
	Error          error
	TransactionID  string
	LogID          int64
	OnChainPending bool
	Certificate    *Certificate
}

type BatchResult struct {
	Success int
	Failed  int
	Results []RevocationResponse
}

type LogFilter struct {
	Start      *time.Time
	End        *time.Time
	AdminID    *int64
	ActionType ActionType
	Limit      int
	Offset     int
}

type LogPage struct {
	Logs   []RevocationLog
	Total  int64
	Limit  int
	Offset int
}
