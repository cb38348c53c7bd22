// Package domain contains core concepts of the message routing system.
// This file defines identities: the addressable parties of a message.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"courier/errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// MaxNameBytes caps a name in bytes, not runes, so every name fits a single
// path segment.
const MaxNameBytes = 128

// Kind tells which sort of party an identity designates.
type Kind int

const (
	KindUser Kind = iota + 1
	KindService
	KindGroup
)

// String returns the wire name used in message records.
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "User"
	case KindService:
		return "Service"
	case KindGroup:
		return "Group"
	default:
		return "Unknown"
	}
}

// Segment returns the directory name used under the storage root.
func (k Kind) Segment() string {
	return strings.ToLower(k.String())
}

func (k Kind) Valid() bool {
	return k >= KindUser && k <= KindGroup
}

// ParseKind accepts both the wire name ("User") and the path segment ("user").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "user":
		return KindUser, nil
	case "service":
		return KindService, nil
	case "group":
		return KindGroup, nil
	default:
		return 0, fmt.Errorf("%w: unknown kind %q", errors.ErrInvalidArgument, s)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %d", errors.ErrInvalidArgument, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Identity is a (kind, name) pair. Names are case-sensitive and end up as
// storage path segments, so they are validated on construction.
type Identity struct {
	Kind Kind
	Name string `validate:"required,pathsafe"`
}

func NewIdentity(kind Kind, name string) (Identity, error) {
	id := Identity{Kind: kind, Name: name}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func User(name string) Identity    { return Identity{Kind: KindUser, Name: name} }
func Service(name string) Identity { return Identity{Kind: KindService, Name: name} }
func Group(name string) Identity   { return Identity{Kind: KindGroup, Name: name} }

func (i Identity) Validate() error {
	if !i.Kind.Valid() {
		return fmt.Errorf("%w: identity kind is missing", errors.ErrInvalidArgument)
	}
	if err := validate.Struct(i); err != nil {
		return fmt.Errorf("%w: identity name %q: %v", errors.ErrInvalidArgument, i.Name, err)
	}
	return nil
}

func (i Identity) IsZero() bool {
	return i.Kind == 0 && i.Name == ""
}

// String renders the identity as "kind/name", the same shape as its storage prefix.
func (i Identity) String() string {
	return i.Kind.Segment() + "/" + i.Name
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("pathsafe", func(fl validator.FieldLevel) bool {
		return IsPathSafe(fl.Field().String())
	})
	return v
}

// IsPathSafe reports whether name can be used verbatim as a single path segment.
func IsPathSafe(name string) bool {
	if name == "" || len(name) > MaxNameBytes || strings.HasPrefix(name, ".") {
		return false
	}
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == 0:
			return false
		case unicode.IsControl(r):
			return false
		}
	}
	return true
}
