package auth

import (
	"courier/domain"
	"courier/errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "a-test-secret-that-is-long-enough-2026"

func newTokenManager(t *testing.T) *TokenManager {
	tokens, err := NewTokenManager(testSecret, "courier", time.Hour)
	require.NoError(t, err)
	return tokens
}

func TestTokenManager_RoundTrip(t *testing.T) {
	req := require.New(t)
	tokens := newTokenManager(t)

	for _, identity := range []domain.Identity{domain.User("alice"), domain.Service("echo")} {
		token, err := tokens.Generate(identity)
		req.NoError(err)

		resolved, err := tokens.Validate(token)
		req.NoError(err)
		req.Equal(identity, resolved)
	}
}

func TestTokenManager_RejectsBadTokens(t *testing.T) {
	req := require.New(t)
	tokens := newTokenManager(t)
	other, err := NewTokenManager(strings.Repeat("x", 40), "courier", time.Hour)
	req.NoError(err)
	otherIssuer, err := NewTokenManager(testSecret, "someone-else", time.Hour)
	req.NoError(err)

	foreign, err := other.Generate(domain.User("alice"))
	req.NoError(err)
	wrongIssuer, err := otherIssuer.Generate(domain.User("alice"))
	req.NoError(err)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Kind: domain.KindUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "courier",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(testSecret))
	req.NoError(err)
	groupToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Kind: domain.KindGroup,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "../etc",
			Issuer:    "courier",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(testSecret))
	req.NoError(err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"other secret", foreign},
		{"other issuer", wrongIssuer},
		{"expired", expired},
		{"unsafe subject", groupToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Validate(tt.token)
			require.ErrorIs(t, err, errors.ErrInvalidCredentials)
		})
	}
}

func TestNewTokenManager_RequiresStrongSecret(t *testing.T) {
	req := require.New(t)

	_, err := NewTokenManager("short", "courier", time.Hour)
	req.ErrorIs(err, errors.ErrInvalidArgument)
	_, err = NewTokenManager(testSecret, "courier", 0)
	req.ErrorIs(err, errors.ErrInvalidArgument)
}

func TestHashAndCompareSecret(t *testing.T) {
	req := require.New(t)
	secret := "MyS3cret-Service-Key!"

	hash, err := HashSecret(secret)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := CompareSecret(secret, hash)
	req.NoError(err)
	req.True(match)

	match, err = CompareSecret("WrongSecret1!", hash)
	req.NoError(err)
	req.False(match)

	_, err = CompareSecret(secret, "plain-text")
	req.Error(err)
}

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"Valid secret", "ComplexPass123!", false},
		{"Too short", "Short1!", true},
		{"Missing digit", "NoDigitPass!", true},
		{"Missing special char", "NoSpecialChar123", true},
		{"Missing uppercase", "nouppercase123!", true},
		{"Too long", strings.Repeat("aA1!", 19), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecret(tt.secret)
			if tt.wantErr {
				require.ErrorIs(t, err, errors.ErrWeakSecret)
				require.ErrorIs(t, err, errors.ErrInvalidArgument)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
