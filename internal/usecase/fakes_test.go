package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"certledger/internal/domain"
)

type memState struct {
	certs   map[int64]domain.Certificate
	logs    []domain.RevocationLog
	history []domain.RevocationHistory
	audits  []domain.RevocationAuditTrail
	sync    map[string]domain.RegistrySyncStatus
	nextID  int64
}

func (s memState) clone() memState {
	out := memState{
		certs:   make(map[int64]domain.Certificate, len(s.certs)),
		logs:    append([]domain.RevocationLog(nil), s.logs...),
		history: append([]domain.RevocationHistory(nil), s.history...),
		audits:  append([]domain.RevocationAuditTrail(nil), s.audits...),
		sync:    make(map[string]domain.RegistrySyncStatus, len(s.sync)),
		nextID:  s.nextID,
	}
	for k, v := range s.certs {
		out.certs[k] = v
	}
	for k, v := range s.sync {
		out.sync[k] = v
	}
	return out
}

// memStore is an in-memory RevocationStore and SyncStatusRepository. A
// transaction works on a copy that replaces the state only on commit.
type memStore struct {
	mu      sync.Mutex
	state   memState
	failOn  string
	commits int
}

func newMemStore(certs ...domain.Certificate) *memStore {
	s := &memStore{state: memState{
		certs:  make(map[int64]domain.Certificate),
		sync:   make(map[string]domain.RegistrySyncStatus),
		nextID: 1000,
	}}
	for _, c := range certs {
		s.state.certs[c.ID] = c
	}
	return s
}

func (s *memStore) snapshot() memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *memStore) cert(id int64) domain.Certificate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.certs[id]
}

func (s *memStore) syncRow(token string) (domain.RegistrySyncStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.state.sync[token]
	return row, ok
}

func (s *memStore) putSync(row domain.RegistrySyncStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.sync[row.TokenAddress] = row
}

func (s *memStore) WithTx(ctx context.Context, fn func(tx RevocationTx) error) error {
	s.mu.Lock()
	work := s.state.clone()
	failOn := s.failOn
	s.mu.Unlock()

	if err := fn(&memTx{st: &work, failOn: failOn}); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = work
	s.commits++
	s.mu.Unlock()
	return nil
}

func (s *memStore) RecordLedgerSuccess(ctx context.Context, logID int64, token, signature string, onChain bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.logs {
		if s.state.logs[i].ID == logID {
			s.state.logs[i].TransactionSignature = signature
		}
	}
	row := s.state.sync[token]
	row.OnChainRevoked = onChain
	row.NeedsSync = false
	row.SyncAttempts = 0
	row.LastError = nil
	row.LastSyncAt = &at
	s.state.sync[token] = row
	return nil
}

func (s *memStore) RecordLedgerFailure(ctx context.Context, logID int64, token, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.logs {
		if s.state.logs[i].ID == logID {
			s.state.logs[i].Metadata.OnChainError = errText
			s.state.logs[i].Metadata.OnChainPending = true
		}
	}
	row := s.state.sync[token]
	row.SyncAttempts++
	row.NeedsSync = true
	row.LastError = &errText
	s.state.sync[token] = row
	return nil
}

func (s *memStore) SetMetadataURI(ctx context.Context, certificateID, logID int64, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.certs[certificateID]
	if !ok {
		return domain.ErrCertificateNotFound
	}
	c.MetadataURI = uri
	s.state.certs[certificateID] = c
	for i := range s.state.logs {
		if s.state.logs[i].ID == logID {
			s.state.logs[i].Metadata.PinnedMetadataURI = uri
		}
	}
	return nil
}

func (s *memStore) ListNeedingSync(ctx context.Context, limit, maxAttempts int) ([]domain.RegistrySyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RegistrySyncStatus
	for _, row := range s.state.sync {
		if row.NeedsSync && (maxAttempts <= 0 || row.SyncAttempts < maxAttempts) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenAddress < out[j].TokenAddress })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ApplySyncResult(ctx context.Context, token string, observedOffChain bool, res domain.SyncResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.state.sync[token]
	if !ok || row.OffChainRevoked != observedOffChain {
		return false, nil
	}
	if res.Success {
		at := res.At
		row.OnChainRevoked = res.OnChainRevoked
		row.NeedsSync = false
		row.SyncAttempts = 0
		row.LastError = nil
		row.LastSyncAt = &at
	} else {
		msg := res.Error
		row.SyncAttempts++
		row.LastError = &msg
	}
	s.state.sync[token] = row
	return true, nil
}

func (s *memStore) GetSyncStatus(ctx context.Context, token string) (domain.RegistrySyncStatus, error) {
	row, ok := s.syncRow(token)
	if !ok {
		return domain.RegistrySyncStatus{}, domain.ErrNotFound
	}
	return row, nil
}

func (s *memStore) ListSyncStatuses(ctx context.Context, needsSyncOnly bool) ([]domain.RegistrySyncStatus, error) {
	if needsSyncOnly {
		return s.ListNeedingSync(ctx, 0, 0)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RegistrySyncStatus, 0, len(s.state.sync))
	for _, row := range s.state.sync {
		out = append(out, row)
	}
	return out, nil
}

type memTx struct {
	st     *memState
	failOn string
}

func (t *memTx) id() int64 {
	t.st.nextID++
	return t.st.nextID
}

func (t *memTx) GetCertificate(ctx context.Context, id int64) (domain.Certificate, error) {
	c, ok := t.st.certs[id]
	if !ok {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	return c, nil
}

func (t *memTx) MarkRevoked(ctx context.Context, id int64, reason string, adminID int64, at time.Time) error {
	c := t.st.certs[id]
	if c.Revoked {
		return domain.ErrAlreadyRevoked
	}
	c.Revoked = true
	c.RevokedAt = &at
	c.RevokedReason = reason
	c.RevokedByID = &adminID
	t.st.certs[id] = c
	return nil
}

func (t *memTx) MarkReinstated(ctx context.Context, id int64, reason string, at time.Time) error {
	c := t.st.certs[id]
	if !c.Revoked {
		return domain.ErrNotRevoked
	}
	c.Revoked = false
	c.RevokedAt = nil
	c.RevokedReason = ""
	c.RevokedByID = nil
	c.ReinstatedAt = &at
	c.ReinstatedReason = reason
	t.st.certs[id] = c
	return nil
}

func (t *memTx) CreateLog(ctx context.Context, log domain.RevocationLog) (int64, error) {
	if t.failOn == "log" {
		return 0, errors.New("insert log failed")
	}
	log.ID = t.id()
	t.st.logs = append(t.st.logs, log)
	return log.ID, nil
}

func (t *memTx) CreateHistory(ctx context.Context, entry domain.RevocationHistory) (int64, error) {
	entry.ID = t.id()
	t.st.history = append(t.st.history, entry)
	return entry.ID, nil
}

func (t *memTx) CreateAuditTrail(ctx context.Context, trail domain.RevocationAuditTrail) (int64, error) {
	if t.failOn == "audit" {
		return 0, errors.New("insert audit trail failed")
	}
	trail.ID = t.id()
	t.st.audits = append(t.st.audits, trail)
	return trail.ID, nil
}

func (t *memTx) UpsertSyncStatus(ctx context.Context, certificateID int64, token string, offChain bool) error {
	row, ok := t.st.sync[token]
	if !ok {
		row = domain.RegistrySyncStatus{CertificateID: certificateID, TokenAddress: token}
	}
	row.OffChainRevoked = offChain
	row.NeedsSync = true
	t.st.sync[token] = row
	return nil
}

type stubLedger struct {
	mu           sync.Mutex
	onChain      map[string]bool
	txID         string
	revokeErr    error
	reinstateErr error
	statusErr    map[string]error
	reject       bool
	onWrite      func(token string)

	revokeCalls    int
	reinstateCalls int
	statusCalls    int
	lastReason     string
	lastCorrelate  string
}

func newStubLedger() *stubLedger {
	return &stubLedger{onChain: make(map[string]bool), statusErr: make(map[string]error), txID: "tx-1"}
}

func (l *stubLedger) Revoke(ctx context.Context, token, reason, correlationID string) (domain.LedgerReceipt, error) {
	l.mu.Lock()
	l.revokeCalls++
	l.lastReason = reason
	l.lastCorrelate = correlationID
	hook := l.onWrite
	if l.revokeErr != nil {
		err := l.revokeErr
		l.mu.Unlock()
		return domain.LedgerReceipt{}, err
	}
	if l.reject {
		l.mu.Unlock()
		return domain.LedgerReceipt{Success: false}, nil
	}
	l.onChain[token] = true
	txID := l.txID
	l.mu.Unlock()
	if hook != nil {
		hook(token)
	}
	return domain.LedgerReceipt{Success: true, TransactionID: txID}, nil
}

func (l *stubLedger) Reinstate(ctx context.Context, token, reason string) (domain.LedgerReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reinstateCalls++
	l.lastReason = reason
	if l.reinstateErr != nil {
		return domain.LedgerReceipt{}, l.reinstateErr
	}
	l.onChain[token] = false
	return domain.LedgerReceipt{Success: true, TransactionID: l.txID}, nil
}

func (l *stubLedger) CheckStatus(ctx context.Context, token string) (domain.LedgerStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statusCalls++
	if err := l.statusErr[token]; err != nil {
		return domain.LedgerStatus{}, err
	}
	return domain.LedgerStatus{Revoked: l.onChain[token]}, nil
}

func (l *stubLedger) writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.revokeCalls + l.reinstateCalls
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
