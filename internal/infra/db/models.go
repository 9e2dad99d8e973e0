package db

import (
	"encoding/json"
	"time"

	"certledger/internal/domain"
)

type AdminModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"not null"`
	Email     string    `gorm:"uniqueIndex;not null"`
	Role      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (AdminModel) TableName() string { return "admins" }

type CertificateModel struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	TokenAddress     string `gorm:"uniqueIndex;not null"`
	Title            string `gorm:"not null"`
	Description      string
	StudentName      string `gorm:"not null"`
	RecipientWallet  string `gorm:"index"`
	MetadataURI      string
	ImageURI         string
	IssuerID         int64 `gorm:"index;not null"`
	Revoked          bool  `gorm:"not null;index"`
	RevokedAt        *time.Time
	RevokedReason    *string
	RevokedByID      *int64
	ReinstatedAt     *time.Time
	ReinstatedReason *string
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`

	Issuer *AdminModel `gorm:"foreignKey:IssuerID"`
}

func (CertificateModel) TableName() string { return "certificates" }

type RevocationLogModel struct {
	ID                   int64  `gorm:"primaryKey;autoIncrement"`
	ActionType           string `gorm:"not null;index"`
	CertificateID        int64  `gorm:"not null;index"`
	TokenAddress         string `gorm:"not null;index"`
	Reason               string `gorm:"not null"`
	AdminID              int64  `gorm:"not null;index"`
	TransactionSignature *string
	Metadata             string    `gorm:"type:text;not null"`
	CreatedAt            time.Time `gorm:"not null;index"`

	Certificate *CertificateModel `gorm:"foreignKey:CertificateID"`
	Admin       *AdminModel       `gorm:"foreignKey:AdminID"`
}

func (RevocationLogModel) TableName() string { return "revocation_logs" }

type RevocationHistoryModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	CertificateID int64     `gorm:"not null;index:idx_history_cert_created,priority:1"`
	EventType     string    `gorm:"not null"`
	Reason        string    `gorm:"not null"`
	ActorID       int64     `gorm:"not null"`
	LogID         int64     `gorm:"not null;index"`
	CreatedAt     time.Time `gorm:"not null;index:idx_history_cert_created,priority:2"`

	Certificate *CertificateModel   `gorm:"foreignKey:CertificateID"`
	Log         *RevocationLogModel `gorm:"foreignKey:LogID"`
}

func (RevocationHistoryModel) TableName() string { return "revocation_history" }

type RevocationAuditTrailModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	LogID     int64 `gorm:"uniqueIndex;not null"`
	AdminID   int64 `gorm:"not null;index"`
	IPAddress string
	UserAgent string
	Changes   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`

	Log *RevocationLogModel `gorm:"foreignKey:LogID"`
}

func (RevocationAuditTrailModel) TableName() string { return "revocation_audit_trail" }

type RegistrySyncStatusModel struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	CertificateID   int64  `gorm:"index;not null"`
	TokenAddress    string `gorm:"uniqueIndex;not null"`
	OffChainRevoked bool   `gorm:"not null"`
	OnChainRevoked  bool   `gorm:"not null"`
	NeedsSync       bool   `gorm:"not null;index"`
	SyncAttempts    int    `gorm:"not null"`
	LastError       *string
	LastSyncAt      *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (RegistrySyncStatusModel) TableName() string { return "registry_sync_status" }

func allModels() []any {
	return []any{
		&AdminModel{},
		&CertificateModel{},
		&RevocationLogModel{},
		&RevocationHistoryModel{},
		&RevocationAuditTrailModel{},
		&RegistrySyncStatusModel{},
	}
}

func adminFromModel(m AdminModel) domain.Admin {
	return domain.Admin{ID: m.ID, Name: m.Name, Email: m.Email, Role: domain.Role(m.Role)}
}

func certificateFromModel(m CertificateModel) domain.Certificate {
	return domain.Certificate{
		ID:               m.ID,
		TokenAddress:     m.TokenAddress,
		Title:            m.Title,
		Description:      m.Description,
		StudentName:      m.StudentName,
		RecipientWallet:  m.RecipientWallet,
		MetadataURI:      m.MetadataURI,
		ImageURI:         m.ImageURI,
		IssuerID:         m.IssuerID,
		Revoked:          m.Revoked,
		RevokedAt:        utcPtr(m.RevokedAt),
		RevokedReason:    deref(m.RevokedReason),
		RevokedByID:      m.RevokedByID,
		ReinstatedAt:     utcPtr(m.ReinstatedAt),
		ReinstatedReason: deref(m.ReinstatedReason),
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

func certificateModelFromDomain(c domain.Certificate) CertificateModel {
	return CertificateModel{
		ID:               c.ID,
		TokenAddress:     c.TokenAddress,
		Title:            c.Title,
		Description:      c.Description,
		StudentName:      c.StudentName,
		RecipientWallet:  c.RecipientWallet,
		MetadataURI:      c.MetadataURI,
		ImageURI:         c.ImageURI,
		IssuerID:         c.IssuerID,
		Revoked:          c.Revoked,
		RevokedAt:        c.RevokedAt,
		RevokedReason:    optional(c.RevokedReason),
		RevokedByID:      c.RevokedByID,
		ReinstatedAt:     c.ReinstatedAt,
		ReinstatedReason: optional(c.ReinstatedReason),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func logFromModel(m RevocationLogModel) (domain.RevocationLog, error) {
	out := domain.RevocationLog{
		ID:                   m.ID,
		ActionType:           domain.ActionType(m.ActionType),
		CertificateID:        m.CertificateID,
		TokenAddress:         m.TokenAddress,
		Reason:               m.Reason,
		AdminID:              m.AdminID,
		TransactionSignature: deref(m.TransactionSignature),
		CreatedAt:            m.CreatedAt.UTC(),
	}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &out.Metadata); err != nil {
			return domain.RevocationLog{}, err
		}
	}
	if m.Certificate != nil {
		cert := certificateFromModel(*m.Certificate)
		out.Certificate = &cert
	}
	if m.Admin != nil {
		admin := adminFromModel(*m.Admin)
		out.Admin = &admin
	}
	return out, nil
}

func historyFromModel(m RevocationHistoryModel) domain.RevocationHistory {
	return domain.RevocationHistory{
		ID:            m.ID,
		CertificateID: m.CertificateID,
		EventType:     domain.HistoryEvent(m.EventType),
		Reason:        m.Reason,
		ActorID:       m.ActorID,
		LogID:         m.LogID,
		CreatedAt:     m.CreatedAt.UTC(),
	}
}

func syncStatusFromModel(m RegistrySyncStatusModel) domain.RegistrySyncStatus {
	return domain.RegistrySyncStatus{
		ID:              m.ID,
		CertificateID:   m.CertificateID,
		TokenAddress:    m.TokenAddress,
		OffChainRevoked: m.OffChainRevoked,
		OnChainRevoked:  m.OnChainRevoked,
		NeedsSync:       m.NeedsSync,
		SyncAttempts:    m.SyncAttempts,
		LastError:       m.LastError,
		LastSyncAt:      utcPtr(m.LastSyncAt),
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}
