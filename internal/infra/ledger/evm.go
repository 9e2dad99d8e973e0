package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"certledger/internal/domain"
	"certledger/internal/usecase"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// RegistryABI is the subset of the certificate registry contract the gateway
// calls.
const RegistryABI = `[
	{"type":"function","name":"revoke","stateMutability":"nonpayable","inputs":[
		{"name":"tokenAddress","type":"string"},
		{"name":"reason","type":"string"},
		{"name":"correlationId","type":"string"}],"outputs":[]},
	{"type":"function","name":"reinstate","stateMutability":"nonpayable","inputs":[
		{"name":"tokenAddress","type":"string"},
		{"name":"reason","type":"string"}],"outputs":[]},
	{"type":"function","name":"isRevoked","stateMutability":"view","inputs":[
		{"name":"tokenAddress","type":"string"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ErrNoTransactOpts is returned when a write is attempted on a read-only gateway.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

type boundContract interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

// EVMGateway talks to the registry contract over JSON-RPC. Writes wait for
// the transaction to be mined; a reverted receipt is reported as
// Success=false.
type EVMGateway struct {
	contract boundContract
	backend  bind.DeployBackend
	address  common.Address
	auth     *bind.TransactOpts
	logger   *zap.Logger
	closeFn  func()
}

func NewEVMGateway(client bind.ContractBackend, backend bind.DeployBackend, address common.Address, logger *zap.Logger) (*EVMGateway, error) {
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EVMGateway{
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		backend:  backend,
		address:  address,
		logger:   logger,
	}, nil
}

// DialEVM connects to rpcURL and returns a gateway that signs with the hex
// encoded private key. A chainID of zero asks the node.
func DialEVM(ctx context.Context, rpcURL, contractAddress, privateKey string, chainID int64, logger *zap.Logger) (*EVMGateway, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddress)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	gw, err := NewEVMGateway(client, client, common.HexToAddress(contractAddress), logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	if privateKey == "" {
		gw.closeFn = client.Close
		return gw, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse ledger private key: %w", err)
	}
	id := big.NewInt(chainID)
	if chainID == 0 {
		if id, err = client.ChainID(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("query chain id: %w", err)
		}
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, id)
	if err != nil {
		client.Close()
		return nil, err
	}
	gw.SetTransactOpts(auth)
	gw.closeFn = client.Close
	return gw, nil
}

func (g *EVMGateway) Address() common.Address { return g.address }

func (g *EVMGateway) Close() {
	if g.closeFn != nil {
		g.closeFn()
	}
}

func (g *EVMGateway) SetTransactOpts(auth *bind.TransactOpts) {
	g.auth = auth
}

func (g *EVMGateway) Revoke(ctx context.Context, tokenAddress, reason, correlationID string) (domain.LedgerReceipt, error) {
	return g.transact(ctx, "revoke", tokenAddress, reason, correlationID)
}

func (g *EVMGateway) Reinstate(ctx context.Context, tokenAddress, reason string) (domain.LedgerReceipt, error) {
	return g.transact(ctx, "reinstate", tokenAddress, reason)
}

func (g *EVMGateway) CheckStatus(ctx context.Context, tokenAddress string) (domain.LedgerStatus, error) {
	var out []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, "isRevoked", tokenAddress); err != nil {
		return domain.LedgerStatus{}, fmt.Errorf("isRevoked(%s): %w", tokenAddress, err)
	}
	if len(out) != 1 {
		return domain.LedgerStatus{}, fmt.Errorf("isRevoked(%s): unexpected result count %d", tokenAddress, len(out))
	}
	revoked := *abi.ConvertType(out[0], new(bool)).(*bool)
	return domain.LedgerStatus{Revoked: revoked}, nil
}

func (g *EVMGateway) transact(ctx context.Context, method string, params ...interface{}) (domain.LedgerReceipt, error) {
	if g.auth == nil {
		return domain.LedgerReceipt{}, ErrNoTransactOpts
	}
	opts := *g.auth
	opts.Context = ctx
	tx, err := g.contract.Transact(&opts, method, params...)
	if err != nil {
		return domain.LedgerReceipt{}, fmt.Errorf("%s: %w", method, err)
	}
	receipt, err := bind.WaitMined(ctx, g.backend, tx)
	if err != nil {
		return domain.LedgerReceipt{}, fmt.Errorf("%s: wait mined %s: %w", method, tx.Hash().Hex(), err)
	}
	ok := receipt.Status == types.ReceiptStatusSuccessful
	if !ok {
		g.logger.Warn("ledger transaction reverted",
			zap.String("method", method),
			zap.String("tx", tx.Hash().Hex()),
		)
	}
	return domain.LedgerReceipt{Success: ok, TransactionID: tx.Hash().Hex()}, nil
}

var _ usecase.LedgerGateway = (*EVMGateway)(nil)
