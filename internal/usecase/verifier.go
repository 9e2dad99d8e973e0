package usecase

import (
	"context"
	"errors"
	"time"

	"certledger/internal/domain"

	"go.uber.org/zap"
)

type Verifier struct {
	Certificates  CertificateRepository
	Ledger        LedgerGateway
	Logger        *zap.Logger
	LedgerTimeout time.Duration
}

func NewVerifier(certs CertificateRepository, ledger LedgerGateway, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{Certificates: certs, Ledger: ledger, Logger: logger}
}

// Verify reports the stored revocation state of a token alongside what the
// ledger currently says. An unknown token is not an error.
func (v *Verifier) Verify(ctx context.Context, tokenAddress string) (domain.Verification, error) {
	if v == nil || v.Certificates == nil {
		return domain.Verification{}, errors.New("certificate repository is required")
	}
	out := domain.Verification{TokenAddress: tokenAddress}
	cert, err := v.Certificates.GetCertificateByTokenAddress(ctx, tokenAddress)
	if errors.Is(err, domain.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return domain.Verification{}, err
	}
	out.Exists = true
	out.Revoked = cert.Revoked
	if cert.Revoked {
		out.RevocationReason = cert.RevokedReason
		out.RevokedAt = cert.RevokedAt
	}
	if v.Ledger == nil {
		return out, nil
	}
	timeout := v.LedgerTimeout
	if timeout <= 0 {
		timeout = defaultLedgerTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	status, err := v.Ledger.CheckStatus(callCtx, tokenAddress)
	if err != nil {
		v.Logger.Warn("ledger status unavailable for verification", zap.String("token", tokenAddress), zap.Error(err))
		return out, nil
	}
	onChain := status.Revoked
	out.OnChainRevoked = &onChain
	out.InSync = onChain == cert.Revoked
	return out, nil
}
