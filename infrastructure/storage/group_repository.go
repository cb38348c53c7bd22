package storage

import (
	"courier/domain"
	"courier/errors"
	"courier/internal/jsoncodec"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

const (
	groupPrefix = "group:"
	grantPrefix = "grant:"
)

// GroupRepository persists group membership and resource grants in Badger so
// they outlive the process independently of message history.
type GroupRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewGroupRepository(db *badger.DB, log *slog.Logger) *GroupRepository {
	return &GroupRepository{db: db, log: log}
}

func groupKey(name string) []byte {
	return []byte(groupPrefix + name)
}

func grantKey(user, resource string) []byte {
	return []byte(grantPrefix + user + ":" + resource)
}

func (r *GroupRepository) SaveGroup(group domain.GroupRecord) error {
	data, err := jsoncodec.Marshal(group)
	if err != nil {
		return errors.NewStorageError("encode group", group.Name, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(groupKey(group.Name), data)
	})
	return errors.NewStorageError("save group", group.Name, err)
}

func (r *GroupRepository) DeleteGroup(name string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(groupKey(name))
	})
	return errors.NewStorageError("delete group", name, err)
}

func (r *GroupRepository) LoadGroups() ([]domain.GroupRecord, error) {
	var groups []domain.GroupRecord
	err := scanPrefix(r.db, []byte(groupPrefix), func(value []byte) error {
		var group domain.GroupRecord
		if err := jsoncodec.Unmarshal(value, &group); err != nil {
			return err
		}
		groups = append(groups, group)
		return nil
	})
	if err != nil {
		return nil, errors.NewStorageError("load groups", "", err)
	}
	return groups, nil
}

func (r *GroupRepository) SaveGrant(grant domain.Grant) error {
	data, err := jsoncodec.Marshal(grant)
	if err != nil {
		return errors.NewStorageError("encode grant", grant.Resource, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(grantKey(grant.User, grant.Resource), data)
	})
	return errors.NewStorageError("save grant", grant.Resource, err)
}

func (r *GroupRepository) DeleteGrant(user, resource string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(grantKey(user, resource))
	})
	return errors.NewStorageError("delete grant", resource, err)
}

func (r *GroupRepository) LoadGrants() ([]domain.Grant, error) {
	var grants []domain.Grant
	err := scanPrefix(r.db, []byte(grantPrefix), func(value []byte) error {
		var grant domain.Grant
		if err := jsoncodec.Unmarshal(value, &grant); err != nil {
			return err
		}
		grants = append(grants, grant)
		return nil
	})
	if err != nil {
		return nil, errors.NewStorageError("load grants", "", err)
	}
	return grants, nil
}

func scanPrefix(db *badger.DB, prefix []byte, fn func(value []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
