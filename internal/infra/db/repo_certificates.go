package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"certledger/internal/domain"

	"gorm.io/gorm"
)

type CertificateRepository struct {
	db *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

func (r *CertificateRepository) GetCertificateByID(ctx context.Context, id int64) (domain.Certificate, error) {
	if r.db == nil {
		return domain.Certificate{}, errDBUnavailable
	}
	return getCertificate(r.db.WithContext(ctx), id)
}

func (r *CertificateRepository) GetCertificateByTokenAddress(ctx context.Context, tokenAddress string) (domain.Certificate, error) {
	if r.db == nil {
		return domain.Certificate{}, errDBUnavailable
	}
	tokenAddress = strings.TrimSpace(tokenAddress)
	if tokenAddress == "" {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	var model CertificateModel
	if err := r.db.WithContext(ctx).Where("token_address = ?", tokenAddress).First(&model).Error; err != nil {
		return domain.Certificate{}, mapNotFound(err, domain.ErrCertificateNotFound)
	}
	return certificateFromModel(model), nil
}

// CreateCertificate records a minted certificate. Minting itself happens
// elsewhere; this exists for seeding and imports.
func (r *CertificateRepository) CreateCertificate(ctx context.Context, cert domain.Certificate) (domain.Certificate, error) {
	if r.db == nil {
		return domain.Certificate{}, errDBUnavailable
	}
	if strings.TrimSpace(cert.TokenAddress) == "" {
		return domain.Certificate{}, errors.New("token_address is required")
	}
	now := dbTime(time.Now())
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = now
	}
	cert.UpdatedAt = now
	model := certificateModelFromDomain(cert)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Certificate{}, err
	}
	return certificateFromModel(model), nil
}

func getCertificate(db *gorm.DB, id int64) (domain.Certificate, error) {
	var model CertificateModel
	if err := db.Where("id = ?", id).First(&model).Error; err != nil {
		return domain.Certificate{}, mapNotFound(err, domain.ErrCertificateNotFound)
	}
	return certificateFromModel(model), nil
}

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) GetAdmin(ctx context.Context, id int64) (domain.Admin, error) {
	if r.db == nil {
		return domain.Admin{}, errDBUnavailable
	}
	var model AdminModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return domain.Admin{}, mapNotFound(err, domain.ErrNotFound)
	}
	return adminFromModel(model), nil
}

func (r *AdminRepository) CreateAdmin(ctx context.Context, admin domain.Admin) (domain.Admin, error) {
	if r.db == nil {
		return domain.Admin{}, errDBUnavailable
	}
	if admin.Role != domain.RoleAdmin && admin.Role != domain.RoleIssuer {
		return domain.Admin{}, errors.New("role must be admin or issuer")
	}
	model := AdminModel{
		ID:        admin.ID,
		Name:      admin.Name,
		Email:     admin.Email,
		Role:      string(admin.Role),
		CreatedAt: dbTime(time.Now()),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Admin{}, err
	}
	return adminFromModel(model), nil
}
