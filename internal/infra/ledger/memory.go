package ledger

import (
	"context"
	"strconv"
	"sync"

	"certledger/internal/domain"
	"certledger/internal/usecase"

	"github.com/ethereum/go-ethereum/crypto"
)

// Memory is a process-local ledger for development and tests. A revoke that
// repeats a correlation id returns the original transaction instead of
// writing again.
type Memory struct {
	mu         sync.Mutex
	revoked    map[string]bool
	byCorrelID map[string]string
	seq        uint64
}

func NewMemory() *Memory {
	return &Memory{
		revoked:    make(map[string]bool),
		byCorrelID: make(map[string]string),
	}
}

func (m *Memory) Revoke(ctx context.Context, tokenAddress, reason, correlationID string) (domain.LedgerReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerReceipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if correlationID != "" {
		if txID, ok := m.byCorrelID[correlationID]; ok && m.revoked[tokenAddress] {
			return domain.LedgerReceipt{Success: true, TransactionID: txID}, nil
		}
	}
	m.revoked[tokenAddress] = true
	txID := m.nextTxID("revoke", tokenAddress)
	if correlationID != "" {
		m.byCorrelID[correlationID] = txID
	}
	return domain.LedgerReceipt{Success: true, TransactionID: txID}, nil
}

func (m *Memory) Reinstate(ctx context.Context, tokenAddress, reason string) (domain.LedgerReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerReceipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenAddress] = false
	return domain.LedgerReceipt{Success: true, TransactionID: m.nextTxID("reinstate", tokenAddress)}, nil
}

func (m *Memory) CheckStatus(ctx context.Context, tokenAddress string) (domain.LedgerStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerStatus{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.LedgerStatus{Revoked: m.revoked[tokenAddress]}, nil
}

// Set forces the on-chain flag, simulating a write made outside this process.
func (m *Memory) Set(tokenAddress string, revoked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenAddress] = revoked
}

func (m *Memory) nextTxID(method, tokenAddress string) string {
	m.seq++
	return crypto.Keccak256Hash([]byte(method), []byte(tokenAddress), []byte(strconv.FormatUint(m.seq, 10))).Hex()
}

var _ usecase.LedgerGateway = (*Memory)(nil)
