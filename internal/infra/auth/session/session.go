// Package session issues and verifies the HS256 session tokens the API
// accepts as bearer credentials.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"certledger/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const MinSecretLength = 32

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string) (*Authenticator, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

func (a *Authenticator) Authenticate(_ context.Context, bearerToken string) (domain.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(bearerToken, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return domain.Principal{}, fmt.Errorf("%w: invalid subject", domain.ErrUnauthorized)
	}
	role := domain.Role(claims.Role)
	if role != domain.RoleAdmin && role != domain.RoleIssuer {
		return domain.Principal{}, fmt.Errorf("%w: invalid role %q", domain.ErrUnauthorized, claims.Role)
	}
	return domain.Principal{ActorID: id, Role: role}, nil
}

// Issue mints a token for principal that expires after ttl.
func (a *Authenticator) Issue(principal domain.Principal, ttl time.Duration) (string, error) {
	if principal.IsZero() {
		return "", errors.New("principal is required")
	}
	now := a.now()
	claims := Claims{
		Role: string(principal.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.Subject(),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

var _ domain.Authenticator = (*Authenticator)(nil)
