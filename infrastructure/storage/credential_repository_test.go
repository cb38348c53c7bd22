package storage

import (
	"courier/domain"
	"courier/errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentialRepository_CreateAndRead(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repo := NewCredentialRepository(db, slog.Default())
	alice := domain.User("alice")

	// Given no credential exists
	_, err := repo.SecretHash(alice)
	req.ErrorIs(err, errors.ErrNotFound)

	// When one is created
	req.NoError(repo.Create(alice, "$argon2id$hash"))

	// Then it can be read back, and not overwritten
	hash, err := repo.SecretHash(alice)
	req.NoError(err)
	req.Equal("$argon2id$hash", hash)
	req.ErrorIs(repo.Create(alice, "other"), errors.ErrAlreadyExists)

	// And a service with the same name is a different identity
	_, err = repo.SecretHash(domain.Service("alice"))
	req.ErrorIs(err, errors.ErrNotFound)
}
