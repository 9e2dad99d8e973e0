package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"certledger/internal/domain"

	"go.uber.org/zap"
)

const defaultLedgerTimeout = 30 * time.Second

var errLedgerRejected = errors.New("ledger reported failure")

type RevocationService struct {
	Store         RevocationStore
	Ledger        LedgerGateway
	Publisher     MetadataPublisher
	Admins        AdminRepository
	Observer      Observer
	Logger        *zap.Logger
	Clock         Clock
	LedgerTimeout time.Duration
}

func NewRevocationService(store RevocationStore, ledger LedgerGateway, logger *zap.Logger, clock Clock) *RevocationService {
	return &RevocationService{
		Store:  store,
		Ledger: ledger,
		Logger: logger,
		Clock:  clock,
	}
}

type transition struct {
	action    domain.ActionType
	event     domain.HistoryEvent
	revoked   bool
	stateErr  error
	verb      string
	synced    string
	pending   string
	callChain func(ctx context.Context, ledger LedgerGateway, cert domain.Certificate, reason string) (domain.LedgerReceipt, error)
}

var revokeTransition = transition{
	action:   domain.ActionRevoke,
	event:    domain.EventRevoked,
	revoked:  true,
	stateErr: domain.ErrAlreadyRevoked,
	verb:     "revoke",
	synced:   "Certificate revoked successfully (on-chain and off-chain)",
	pending:  "Certificate revoked off-chain. On-chain revocation pending retry.",
	callChain: func(ctx context.Context, ledger LedgerGateway, cert domain.Certificate, reason string) (domain.LedgerReceipt, error) {
		return ledger.Revoke(ctx, cert.TokenAddress, reason, cert.CorrelationID())
	},
}

var reinstateTransition = transition{
	action:   domain.ActionReinstate,
	event:    domain.EventReinstated,
	revoked:  false,
	stateErr: domain.ErrNotRevoked,
	verb:     "reinstate",
	synced:   "Certificate reinstated successfully (on-chain and off-chain)",
	pending:  "Certificate reinstated off-chain. On-chain reinstatement pending retry.",
	callChain: func(ctx context.Context, ledger LedgerGateway, cert domain.Certificate, reason string) (domain.LedgerReceipt, error) {
		return ledger.Reinstate(ctx, cert.TokenAddress, reason)
	},
}

// Revoke marks a certificate revoked off-chain and then tries to mirror the
// change on the ledger. Success is reported once the off-chain write commits.
func (s *RevocationService) Revoke(ctx context.Context, req domain.RevocationRequest) domain.RevocationResponse {
	return s.apply(ctx, req, revokeTransition)
}

func (s *RevocationService) Reinstate(ctx context.Context, req domain.RevocationRequest) domain.RevocationResponse {
	return s.apply(ctx, req, reinstateTransition)
}

func (s *RevocationService) apply(ctx context.Context, req domain.RevocationRequest, t transition) domain.RevocationResponse {
	if s == nil || s.Store == nil {
		return failure(errors.New("revocation store is required"), t)
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return failure(domain.ErrReasonRequired, t)
	}
	log := s.logger().With(zap.Int64("certificate_id", req.CertificateID), zap.String("action", string(t.action)))

	// The off-chain write runs to commit or rollback even if the caller goes away.
	txCtx := context.WithoutCancel(ctx)
	now := s.now().UTC()
	var (
		cert  domain.Certificate
		logID int64
	)
	err := s.Store.WithTx(txCtx, func(tx RevocationTx) error {
		current, err := tx.GetCertificate(txCtx, req.CertificateID)
		if err != nil {
			return err
		}
		if current.Revoked == t.revoked {
			return t.stateErr
		}
		if t.revoked {
			err = tx.MarkRevoked(txCtx, current.ID, req.Reason, req.AdminID, now)
		} else {
			err = tx.MarkReinstated(txCtx, current.ID, req.Reason, now)
		}
		if err != nil {
			return err
		}
		logID, err = tx.CreateLog(txCtx, domain.RevocationLog{
			ActionType:    t.action,
			CertificateID: current.ID,
			TokenAddress:  current.TokenAddress,
			Reason:        req.Reason,
			AdminID:       req.AdminID,
			Metadata: domain.LogMetadata{
				IPAddress: req.Context.IPAddress,
				UserAgent: req.Context.UserAgent,
			},
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("create revocation log: %w", err)
		}
		if _, err := tx.CreateHistory(txCtx, domain.RevocationHistory{
			CertificateID: current.ID,
			EventType:     t.event,
			Reason:        req.Reason,
			ActorID:       req.AdminID,
			LogID:         logID,
			CreatedAt:     now,
		}); err != nil {
			return fmt.Errorf("create revocation history: %w", err)
		}
		if err := tx.UpsertSyncStatus(txCtx, current.ID, current.TokenAddress, t.revoked); err != nil {
			return fmt.Errorf("upsert sync status: %w", err)
		}
		if _, err := tx.CreateAuditTrail(txCtx, domain.RevocationAuditTrail{
			LogID:     logID,
			AdminID:   req.AdminID,
			IPAddress: req.Context.IPAddress,
			UserAgent: req.Context.UserAgent,
			Changes: domain.AuditChanges{
				Action:        t.action,
				CertificateID: current.ID,
				TokenAddress:  current.TokenAddress,
				Reason:        req.Reason,
				Timestamp:     now,
			},
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("create audit trail: %w", err)
		}
		cert, err = tx.GetCertificate(txCtx, current.ID)
		return err
	})
	if err != nil {
		if !isBusinessError(err) {
			log.Error("off-chain transition failed", zap.Error(err))
		}
		s.observer().ObserveTransition(t.action, false, false)
		return failure(err, t)
	}

	if uri := s.publishMetadata(txCtx, cert, req, t, now, logID); uri != "" {
		cert.MetadataURI = uri
	}

	resp := domain.RevocationResponse{
		Success:     true,
		LogID:       logID,
		Certificate: &cert,
	}
	receipt, chainErr := s.callLedger(ctx, t, cert, req.Reason)
	if chainErr != nil {
		log.Warn("ledger call failed, deferring to reconciler",
			zap.String("token", cert.TokenAddress),
			zap.Int64("log_id", logID),
			zap.Error(chainErr),
		)
		if err := s.Store.RecordLedgerFailure(txCtx, logID, cert.TokenAddress, chainErr.Error()); err != nil {
			log.Error("record ledger failure", zap.String("token", cert.TokenAddress), zap.Error(err))
		}
		resp.Message = t.pending
		resp.OnChainPending = true
		s.observer().ObserveTransition(t.action, true, true)
		return resp
	}
	if err := s.Store.RecordLedgerSuccess(txCtx, logID, cert.TokenAddress, receipt.TransactionID, t.revoked, s.now().UTC()); err != nil {
		// The sync row is still flagged, so the next sweep confirms it.
		log.Error("record ledger success", zap.String("token", cert.TokenAddress), zap.Error(err))
	}
	resp.Message = t.synced
	resp.TransactionID = receipt.TransactionID
	s.observer().ObserveTransition(t.action, true, false)
	return resp
}

func (s *RevocationService) callLedger(ctx context.Context, t transition, cert domain.Certificate, reason string) (domain.LedgerReceipt, error) {
	if s.Ledger == nil {
		return domain.LedgerReceipt{}, domain.ErrLedgerUnavailable
	}
	timeout := s.LedgerTimeout
	if timeout <= 0 {
		timeout = defaultLedgerTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	receipt, err := t.callChain(callCtx, s.Ledger, cert, reason)
	if err != nil {
		return domain.LedgerReceipt{}, err
	}
	if !receipt.Success {
		return domain.LedgerReceipt{}, errLedgerRejected
	}
	return receipt, nil
}

func (s *RevocationService) publishMetadata(ctx context.Context, cert domain.Certificate, req domain.RevocationRequest, t transition, at time.Time, logID int64) string {
	if s.Publisher == nil {
		return ""
	}
	log := s.logger().With(zap.Int64("certificate_id", cert.ID), zap.Int64("log_id", logID))
	uri, err := s.Publisher.Publish(ctx, s.metadataFor(ctx, cert, req, t, at))
	if err != nil {
		log.Warn("metadata re-pin failed", zap.Error(err))
		return ""
	}
	if err := s.Store.SetMetadataURI(ctx, cert.ID, logID, uri); err != nil {
		log.Warn("store pinned metadata uri", zap.String("uri", uri), zap.Error(err))
		return ""
	}
	return uri
}

func (s *RevocationService) metadataFor(ctx context.Context, cert domain.Certificate, req domain.RevocationRequest, t transition, at time.Time) domain.CertificateMetadata {
	date := at.Format(time.RFC3339)
	attrs := []domain.MetadataAttribute{
		{TraitType: "Student Name", Value: cert.StudentName},
		{TraitType: "Revoked", Value: strconv.FormatBool(t.revoked)},
	}
	if t.revoked {
		attrs = append(attrs,
			domain.MetadataAttribute{TraitType: "Revocation Reason", Value: req.Reason},
			domain.MetadataAttribute{TraitType: "Revocation Date", Value: date},
			domain.MetadataAttribute{TraitType: "Revoked By", Value: s.adminName(ctx, req.AdminID)},
		)
	} else {
		attrs = append(attrs,
			domain.MetadataAttribute{TraitType: "Reinstatement Reason", Value: req.Reason},
			domain.MetadataAttribute{TraitType: "Reinstatement Date", Value: date},
		)
	}
	return domain.CertificateMetadata{
		Name:        cert.Title,
		Description: cert.Description,
		Image:       cert.ImageURI,
		Attributes:  attrs,
	}
}

func (s *RevocationService) adminName(ctx context.Context, adminID int64) string {
	if s.Admins != nil {
		if admin, err := s.Admins.GetAdmin(ctx, adminID); err == nil && admin.Name != "" {
			return admin.Name
		}
	}
	return "admin #" + strconv.FormatInt(adminID, 10)
}

func failure(err error, t transition) domain.RevocationResponse {
	var msg string
	switch {
	case errors.Is(err, domain.ErrReasonRequired):
		msg = "Revocation reason is required"
	case errors.Is(err, domain.ErrCertificateNotFound):
		msg = "Certificate not found"
	case errors.Is(err, domain.ErrAlreadyRevoked):
		msg = "Certificate is already revoked"
	case errors.Is(err, domain.ErrNotRevoked):
		msg = "Certificate is not revoked"
	default:
		msg = fmt.Sprintf("Failed to %s certificate: %v", t.verb, err)
	}
	return domain.RevocationResponse{Success: false, Message: msg, Error: err}
}

func isBusinessError(err error) bool {
	return errors.Is(err, domain.ErrCertificateNotFound) ||
		errors.Is(err, domain.ErrAlreadyRevoked) ||
		errors.Is(err, domain.ErrNotRevoked) ||
		errors.Is(err, domain.ErrInvalidRequest)
}

func (s *RevocationService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *RevocationService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func (s *RevocationService) observer() Observer {
	if s.Observer != nil {
		return s.Observer
	}
	return nopObserver{}
}
