package auth

import (
	"courier/errors"
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SecretRequest is what an identity presents to register a credential.
type SecretRequest struct {
	Secret string `validate:"required,min=12,max=72"`
}

// ValidateSecret enforces length and mixes upper, lower, digit and symbol characters.
func ValidateSecret(secret string) error {
	if err := validate.Struct(SecretRequest{Secret: secret}); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrWeakSecret, err)
	}
	if !isComplex(secret) {
		return errors.ErrWeakSecret
	}
	return nil
}

func isComplex(s string) bool {
	var upper, lower, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	return upper && lower && digit && special
}
