package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrRateLimited       = errors.New("rate limited")
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	ErrCertificateNotFound = fmt.Errorf("certificate %w", ErrNotFound)
	ErrAlreadyRevoked      = errors.New("certificate is already revoked")
	ErrNotRevoked          = errors.New("certificate is not revoked")
	ErrReasonRequired      = fmt.Errorf("%w: reason is required", ErrInvalidRequest)
)
