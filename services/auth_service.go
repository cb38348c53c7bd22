package services

import (
	"courier/auth"
	"courier/contract"
	"courier/domain"
	"courier/errors"
	"fmt"
	"log/slog"
)

type IAuthService interface {
	Register(identity domain.Identity, secret string) (Token, error)
	Login(identity domain.Identity, secret string) (Token, error)
}

type Token string

func (t Token) String() string {
	return string(t)
}

// AuthService exchanges an identity secret for a bearer token.
type AuthService struct {
	log         *slog.Logger
	credentials contract.ICredentialRepository
	tokens      *auth.TokenManager
}

func NewAuthService(log *slog.Logger, credentials contract.ICredentialRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{log: log, credentials: credentials, tokens: tokens}
}

// Register stores a hash of secret for identity and issues a first token.
// Groups cannot hold credentials.
func (s *AuthService) Register(identity domain.Identity, secret string) (Token, error) {
	if err := identity.Validate(); err != nil {
		return "", err
	}
	if identity.Kind == domain.KindGroup {
		return "", fmt.Errorf("%w: groups cannot log in", errors.ErrInvalidArgument)
	}
	// Checked before any hashing
	if err := auth.ValidateSecret(secret); err != nil {
		return "", err
	}

	hash, err := auth.HashSecret(secret)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}
	if err := s.credentials.Create(identity, hash); err != nil {
		return "", err
	}
	s.log.Info("Credential registered", "identity", identity.String())
	return s.issue(identity)
}

// Login never tells an unknown identity apart from a wrong secret.
func (s *AuthService) Login(identity domain.Identity, secret string) (Token, error) {
	if err := identity.Validate(); err != nil {
		return "", errors.ErrInvalidCredentials
	}
	hash, err := s.credentials.SecretHash(identity)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "", errors.ErrInvalidCredentials
		}
		return "", err
	}
	match, err := auth.CompareSecret(secret, hash)
	if err != nil || !match {
		s.log.Debug("Login refused", "identity", identity.String())
		return "", errors.ErrInvalidCredentials
	}
	return s.issue(identity)
}

func (s *AuthService) issue(identity domain.Identity) (Token, error) {
	token, err := s.tokens.Generate(identity)
	if err != nil {
		return "", fmt.Errorf("token generation: %w", err)
	}
	return Token(token), nil
}
