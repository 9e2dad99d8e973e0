package domain

import "time"

type RegistrySyncStatus struct {
	ID              int64
	CertificateID   int64
	TokenAddress    string
	OffChainRevoked bool
	OnChainRevoked  bool
	NeedsSync       bool
	SyncAttempts    int
	LastError       *string
	LastSyncAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SyncResult is what a reconciler step writes back for one token. Success
// clears the row and records OnChainRevoked; otherwise Error is stored and
// the attempt counter grows.
type SyncResult struct {
	Success        bool
	OnChainRevoked bool
	Error          string
	At             time.Time
}

type SyncAction string

const (
	SyncActionNone       SyncAction = "none"
	SyncActionConfirmed  SyncAction = "confirmed"
	SyncActionRevoked    SyncAction = "revoked"
	SyncActionReinstated SyncAction = "reinstated"
)

type SyncOutcome struct {
	TokenAddress string
	Success      bool
	Action       SyncAction
	SyncedAt     *time.Time
	Error        string
}
