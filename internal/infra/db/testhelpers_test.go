package db

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"certledger/internal/domain"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	gdb, err := Open("sqlite", dsn, false)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewStoreFromDB(gdb)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

type seed struct {
	issuer domain.Admin
	admin  domain.Admin
	cert   domain.Certificate
}

func seedCertificate(t *testing.T, store *Store) seed {
	t.Helper()
	ctx := context.Background()
	issuer, err := store.Admins.CreateAdmin(ctx, domain.Admin{ID: 3, Name: "Issuer", Email: "issuer@example.edu", Role: domain.RoleIssuer})
	require.NoError(t, err)
	admin, err := store.Admins.CreateAdmin(ctx, domain.Admin{ID: 7, Name: "Grace", Email: "grace@example.edu", Role: domain.RoleAdmin})
	require.NoError(t, err)
	cert, err := store.Certificates.CreateCertificate(ctx, domain.Certificate{
		ID:           42,
		TokenAddress: "ABC123",
		Title:        "BSc Computer Science",
		StudentName:  "Ada",
		IssuerID:     issuer.ID,
	})
	require.NoError(t, err)
	return seed{issuer: issuer, admin: admin, cert: cert}
}

type fakeLedger struct {
	mu        sync.Mutex
	onChain   map[string]bool
	txID      string
	revokeErr error
	calls     int
}

func newFakeLedger(txID string) *fakeLedger {
	return &fakeLedger{onChain: map[string]bool{}, txID: txID}
}

func (l *fakeLedger) Revoke(ctx context.Context, token, reason, correlationID string) (domain.LedgerReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.revokeErr != nil {
		return domain.LedgerReceipt{}, l.revokeErr
	}
	l.onChain[token] = true
	return domain.LedgerReceipt{Success: true, TransactionID: l.txID}, nil
}

func (l *fakeLedger) Reinstate(ctx context.Context, token, reason string) (domain.LedgerReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.onChain[token] = false
	return domain.LedgerReceipt{Success: true, TransactionID: l.txID}, nil
}

func (l *fakeLedger) CheckStatus(ctx context.Context, token string) (domain.LedgerStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.LedgerStatus{Revoked: l.onChain[token]}, nil
}

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
