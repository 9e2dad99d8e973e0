package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"certledger/internal/domain"
	"certledger/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRevocationService(store *Store, ledger usecase.LedgerGateway) *usecase.RevocationService {
	svc := usecase.NewRevocationService(store.Revocations, ledger, nil, clockAt(fixedNow))
	svc.LedgerTimeout = time.Second
	return svc
}

func TestRevocation_SyncedScenario(t *testing.T) {
	store := newTestStore(t)
	s := seedCertificate(t, store)
	ctx := context.Background()

	resp := newRevocationService(store, newFakeLedger("sig999")).Revoke(ctx, domain.RevocationRequest{
		CertificateID: s.cert.ID,
		Reason:        "policy violation",
		AdminID:       s.admin.ID,
		Context:       domain.RequestContext{IPAddress: "10.0.0.1", UserAgent: "curl/8"},
	})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "sig999", resp.TransactionID)

	cert, err := store.Certificates.GetCertificateByID(ctx, 42)
	require.NoError(t, err)
	assert.True(t, cert.Revoked)
	assert.Equal(t, "policy violation", cert.RevokedReason)
	require.NotNil(t, cert.RevokedByID)
	assert.Equal(t, int64(7), *cert.RevokedByID)

	logs, total, err := store.Logs.ListLogs(ctx, domain.LogFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ActionRevoke, logs[0].ActionType)
	assert.Equal(t, "sig999", logs[0].TransactionSignature)
	assert.Equal(t, "10.0.0.1", logs[0].Metadata.IPAddress)
	require.NotNil(t, logs[0].Admin)
	assert.Equal(t, "Grace", logs[0].Admin.Name)
	require.NotNil(t, logs[0].Certificate)
	assert.Equal(t, "ABC123", logs[0].Certificate.TokenAddress)

	history, err := store.Logs.ListHistory(ctx, 42)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.EventRevoked, history[0].EventType)
	assert.Equal(t, logs[0].ID, history[0].LogID)

	var trail RevocationAuditTrailModel
	require.NoError(t, store.DB.Where("log_id = ?", logs[0].ID).First(&trail).Error)
	assert.Contains(t, trail.Changes, `"mintAddress":"ABC123"`)

	row, err := store.SyncStatus.GetSyncStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, row.OffChainRevoked)
	assert.True(t, row.OnChainRevoked)
	assert.False(t, row.NeedsSync)
	assert.Equal(t, 0, row.SyncAttempts)
	require.NotNil(t, row.LastSyncAt)
	assert.True(t, fixedNow.Equal(*row.LastSyncAt))
}

func TestRevocation_LedgerFailureKeepsOffChainState(t *testing.T) {
	store := newTestStore(t)
	s := seedCertificate(t, store)
	ctx := context.Background()
	ledger := newFakeLedger("")
	ledger.revokeErr = errors.New("RPC timeout")

	resp := newRevocationService(store, ledger).Revoke(ctx, domain.RevocationRequest{
		CertificateID: s.cert.ID, Reason: "policy violation", AdminID: s.admin.ID,
	})
	require.True(t, resp.Success)
	assert.Contains(t, resp.Message, "pending retry")

	row, err := store.SyncStatus.GetSyncStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, row.OffChainRevoked)
	assert.False(t, row.OnChainRevoked)
	assert.True(t, row.NeedsSync)
	assert.Equal(t, 1, row.SyncAttempts)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "RPC timeout", *row.LastError)

	logs, _, err := store.Logs.ListLogs(ctx, domain.LogFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].TransactionSignature)
	assert.Equal(t, "RPC timeout", logs[0].Metadata.OnChainError)
	assert.True(t, logs[0].Metadata.OnChainPending)

	ledger.revokeErr = nil
	rec := usecase.NewSyncReconciler(store.SyncStatus, ledger, nil, clockAt(fixedNow))
	outcomes, err := rec.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)

	row, err = store.SyncStatus.GetSyncStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, row.OnChainRevoked)
	assert.False(t, row.NeedsSync)
	assert.Nil(t, row.LastError)
}

func TestRevocationRepository_WithTxRollsBackEverything(t *testing.T) {
	store := newTestStore(t)
	s := seedCertificate(t, store)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Revocations.WithTx(ctx, func(tx usecase.RevocationTx) error {
		require.NoError(t, tx.MarkRevoked(ctx, s.cert.ID, "r", s.admin.ID, fixedNow))
		logID, err := tx.CreateLog(ctx, domain.RevocationLog{
			ActionType: domain.ActionRevoke, CertificateID: s.cert.ID, TokenAddress: "ABC123", Reason: "r", AdminID: s.admin.ID,
		})
		require.NoError(t, err)
		_, err = tx.CreateHistory(ctx, domain.RevocationHistory{
			CertificateID: s.cert.ID, EventType: domain.EventRevoked, Reason: "r", ActorID: s.admin.ID, LogID: logID,
		})
		require.NoError(t, err)
		require.NoError(t, tx.UpsertSyncStatus(ctx, s.cert.ID, "ABC123", true))
		return boom
	})
	require.ErrorIs(t, err, boom)

	cert, err := store.Certificates.GetCertificateByID(ctx, s.cert.ID)
	require.NoError(t, err)
	assert.False(t, cert.Revoked)
	_, total, err := store.Logs.ListLogs(ctx, domain.LogFilter{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	history, err := store.Logs.ListHistory(ctx, s.cert.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
	_, err = store.SyncStatus.GetSyncStatus(ctx, "ABC123")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRevocationTx_ConditionalTransitions(t *testing.T) {
	store := newTestStore(t)
	s := seedCertificate(t, store)
	ctx := context.Background()

	err := store.Revocations.WithTx(ctx, func(tx usecase.RevocationTx) error {
		return tx.MarkReinstated(ctx, s.cert.ID, "nothing to undo", fixedNow)
	})
	assert.ErrorIs(t, err, domain.ErrNotRevoked)

	require.NoError(t, store.Revocations.WithTx(ctx, func(tx usecase.RevocationTx) error {
		return tx.MarkRevoked(ctx, s.cert.ID, "first", s.admin.ID, fixedNow)
	}))
	err = store.Revocations.WithTx(ctx, func(tx usecase.RevocationTx) error {
		return tx.MarkRevoked(ctx, s.cert.ID, "second", s.admin.ID, fixedNow)
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyRevoked)

	cert, err := store.Certificates.GetCertificateByID(ctx, s.cert.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", cert.RevokedReason)

	err = store.Revocations.WithTx(ctx, func(tx usecase.RevocationTx) error {
		_, err := tx.GetCertificate(ctx, 999)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrCertificateNotFound)
}

func TestRevocationTx_UpsertSyncStatusMergePolicy(t *testing.T) {
	store := newTestStore(t)
	s := seedCertificate(t, store)
	ctx := context.Background()

	upsert := func(offChain bool) {
		require.NoError(t, store.Revocations.WithTx(ctx, func(tx usecase.RevocationTx) error {
			return tx.UpsertSyncStatus(ctx, s.cert.ID, "ABC123", offChain)
		}))
	}
	upsert(true)
	require.NoError(t, store.Revocations.RecordLedgerSuccess(ctx, 0, "ABC123", "", true, fixedNow))
	require.NoError(t, store.DB.Model(&RegistrySyncStatusModel{}).
		Where("token_address = ?", "ABC123").
		Updates(map[string]any{"sync_attempts": 2, "last_error": "old"}).Error)

	upsert(false)

	row, err := store.SyncStatus.GetSyncStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.False(t, row.OffChainRevoked)
	assert.True(t, row.NeedsSync)
	assert.True(t, row.OnChainRevoked, "update branch must keep on-chain flag")
	assert.Equal(t, 2, row.SyncAttempts, "update branch must keep attempts")
	require.NotNil(t, row.LastError)
	assert.Equal(t, "old", *row.LastError)
	require.NotNil(t, row.LastSyncAt)

	var count int64
	require.NoError(t, store.DB.Model(&RegistrySyncStatusModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRevocationRepository_LedgerSuccessAfterIntentChanged(t *testing.T) {
	store := newTestStore(t)
	s := seedCertificate(t, store)
	ctx := context.Background()
	require.NoError(t, store.Revocations.WithTx(ctx, func(tx usecase.RevocationTx) error {
		return tx.UpsertSyncStatus(ctx, s.cert.ID, "ABC123", false)
	}))

	// A revoke's ledger call finishes after a reinstate already committed.
	require.NoError(t, store.Revocations.RecordLedgerSuccess(ctx, 0, "ABC123", "", true, fixedNow))

	row, err := store.SyncStatus.GetSyncStatus(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, row.OnChainRevoked)
	assert.True(t, row.NeedsSync)
	assert.Nil(t, row.LastSyncAt)
}

func TestRevocationRepository_SetMetadataURI(t *testing.T) {
	store := newTestStore(t)
	seedCertificate(t, store)
	ctx := context.Background()
	resp := newRevocationService(store, newFakeLedger("tx")).Revoke(ctx, domain.RevocationRequest{
		CertificateID: 42, Reason: "r", AdminID: 7,
	})
	require.True(t, resp.Success)

	require.NoError(t, store.Revocations.SetMetadataURI(ctx, 42, resp.LogID, "ipfs://bafy"))

	cert, err := store.Certificates.GetCertificateByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://bafy", cert.MetadataURI)
	logs, _, err := store.Logs.ListLogs(ctx, domain.LogFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "ipfs://bafy", logs[0].Metadata.PinnedMetadataURI)

	assert.ErrorIs(t, store.Revocations.SetMetadataURI(ctx, 404, resp.LogID, "x"), domain.ErrCertificateNotFound)
}

func TestRevocationRepository_NilDB(t *testing.T) {
	repo := NewRevocationRepository(nil)
	err := repo.WithTx(context.Background(), func(usecase.RevocationTx) error { return nil })
	assert.ErrorIs(t, err, errDBUnavailable)
}
