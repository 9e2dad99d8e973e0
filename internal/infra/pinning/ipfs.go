// Package pinning publishes certificate metadata documents to IPFS.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"certledger/internal/domain"
	"certledger/internal/usecase"

	shell "github.com/ipfs/go-ipfs-api"
	"go.uber.org/zap"
)

var ErrNodeUnavailable = errors.New("ipfs node unavailable")

const defaultTimeout = 20 * time.Second

// IPFSPublisher adds metadata JSON to an IPFS node and pins it.
type IPFSPublisher struct {
	shell  *shell.Shell
	apiURL string
	logger *zap.Logger
}

func NewIPFSPublisher(apiURL string, timeout time.Duration, logger *zap.Logger) *IPFSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	sh := shell.NewShell(apiURL)
	sh.SetTimeout(timeout)
	return &IPFSPublisher{shell: sh, apiURL: apiURL, logger: logger}
}

// Publish returns an ipfs:// URI for the pinned document.
func (p *IPFSPublisher) Publish(ctx context.Context, metadata domain.CertificateMetadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if !p.shell.IsUp() {
		p.logger.Warn("ipfs node unavailable", zap.String("api", p.apiURL))
		return "", ErrNodeUnavailable
	}
	start := time.Now()
	cid, err := p.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return "", fmt.Errorf("add metadata to ipfs: %w", err)
	}
	p.logger.Debug("pinned certificate metadata",
		zap.String("cid", cid),
		zap.Int("size", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return "ipfs://" + cid, nil
}

var _ usecase.MetadataPublisher = (*IPFSPublisher)(nil)
