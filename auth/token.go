// Package auth resolves the identity behind a bearer token and guards the
// gRPC surface with it.
package auth

import (
	"courier/domain"
	"courier/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the identity a token was issued for. The subject holds the name.
type Claims struct {
	Kind domain.Kind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenManager issues and checks HS256 tokens.
type TokenManager struct {
	secret   []byte
	issuer   string
	duration time.Duration
}

func NewTokenManager(secret, issuer string, duration time.Duration) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("%w: token secret must be at least 32 bytes", errors.ErrInvalidArgument)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: token duration must be positive", errors.ErrInvalidArgument)
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, duration: duration}, nil
}

func (m *TokenManager) Generate(identity domain.Identity) (string, error) {
	if err := identity.Validate(); err != nil {
		return "", err
	}
	now := time.Now()
	claims := &Claims{
		Kind: identity.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Name,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate checks signature, algorithm, issuer and expiry, then returns the identity.
func (m *TokenManager) Validate(tokenString string) (domain.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrInvalidCredentials, err)
	}
	identity, err := domain.NewIdentity(claims.Kind, claims.Subject)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrInvalidCredentials, err)
	}
	return identity, nil
}
