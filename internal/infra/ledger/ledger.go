// Package ledger holds the gateways to the on-chain certificate registry.
package ledger

import (
	"context"
	"fmt"

	"certledger/internal/config"
	"certledger/internal/usecase"

	"go.uber.org/zap"
)

// FromConfig builds the gateway selected by LEDGER_MODE, wrapped in a circuit
// breaker. The returned close func releases the RPC connection.
func FromConfig(ctx context.Context, cfg config.Config, logger *zap.Logger) (usecase.LedgerGateway, func(), error) {
	breakerCfg := BreakerConfig{
		ConsecutiveFailures: cfg.LedgerBreakerFailures,
		Cooldown:            cfg.LedgerBreakerCooldown,
	}
	switch cfg.LedgerMode {
	case "", "memory":
		return NewBreaker(NewMemory(), breakerCfg, logger), func() {}, nil
	case "evm":
		gw, err := DialEVM(ctx, cfg.LedgerRPCURL, cfg.LedgerContractAddress, cfg.LedgerPrivateKey, cfg.LedgerChainID, logger)
		if err != nil {
			return nil, nil, err
		}
		if logger != nil {
			logger.Info("ledger gateway ready", zap.String("contract", gw.Address().Hex()))
		}
		return NewBreaker(gw, breakerCfg, logger), gw.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ledger mode %q", cfg.LedgerMode)
	}
}
