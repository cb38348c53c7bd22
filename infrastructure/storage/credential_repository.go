package storage

import (
	"courier/domain"
	"courier/errors"
	"courier/internal/jsoncodec"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const credentialPrefix = "cred:"

type credentialRecord struct {
	Kind       domain.Kind `json:"kind"`
	Name       string      `json:"name"`
	SecretHash string      `json:"secretHash"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// CredentialRepository keeps one secret hash per identity, never the secret itself.
type CredentialRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewCredentialRepository(db *badger.DB, log *slog.Logger) *CredentialRepository {
	return &CredentialRepository{db: db, log: log}
}

func credentialKey(identity domain.Identity) []byte {
	return []byte(credentialPrefix + identity.Kind.Segment() + ":" + identity.Name)
}

func (r *CredentialRepository) Create(identity domain.Identity, secretHash string) error {
	data, err := jsoncodec.Marshal(credentialRecord{
		Kind:       identity.Kind,
		Name:       identity.Name,
		SecretHash: secretHash,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return errors.NewStorageError("encode credential", identity.String(), err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		key := credentialKey(identity)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: credential for %s", errors.ErrAlreadyExists, identity)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, errors.ErrAlreadyExists) {
		return err
	}
	return errors.NewStorageError("save credential", identity.String(), err)
}

// SecretHash fails with ErrNotFound for identities without a credential.
func (r *CredentialRepository) SecretHash(identity domain.Identity) (string, error) {
	var record credentialRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(credentialKey(identity))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return jsoncodec.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: credential for %s", errors.ErrNotFound, identity)
	}
	if err != nil {
		return "", errors.NewStorageError("load credential", identity.String(), err)
	}
	return record.SecretHash, nil
}
