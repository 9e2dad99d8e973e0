package domain

import "time"

type Admin struct {
	ID    int64
	Name  string
	Email string
	Role  Role
}

type Certificate struct {
	ID               int64
	TokenAddress     string
	Title            string
	Description      string
	StudentName      string
	RecipientWallet  string
	MetadataURI      string
	ImageURI         string
	IssuerID         int64
	Revoked          bool
	RevokedAt        *time.Time
	RevokedReason    string
	RevokedByID      *int64
	ReinstatedAt     *time.Time
	ReinstatedReason string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CorrelationID identifies ledger writes for this certificate so repeated
// submissions can be deduplicated on-chain.
func (c Certificate) CorrelationID() string {
	return CorrelationID(c.ID)
}
