package domain

import "time"

// Verification is the public view of a certificate's revocation state.
// OnChainRevoked is nil when the ledger could not be read.
type Verification struct {
	TokenAddress     string
	Exists           bool
	Revoked          bool
	RevocationReason string
	RevokedAt        *time.Time
	OnChainRevoked   *bool
	InSync           bool
}

// CertificateMetadata is the NFT metadata document re-pinned after a
// revocation state change.
type CertificateMetadata struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Image       string              `json:"image,omitempty"`
	Attributes  []MetadataAttribute `json:"attributes"`
}

type MetadataAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}
