package storage

import (
	"courier/domain"
	"courier/errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	locationPrefix = "loc:"
	unreadPrefix   = "unread:"
	metaPrefix     = "meta:"
	builtKey       = "meta:indexed"
)

// Location is where one copy of a message lives in the storage tree.
type Location struct {
	Owner     domain.Identity
	Direction domain.Direction
	Day       string
}

// LocationIndex maps message identifiers to their copies and tracks unread
// inbound copies per identity, so neither MarkRead nor HasUnread walks the tree.
//
// Keys:
//
//	loc:{messageID}:{kind}:{direction}:{name}  -> day
//	unread:{kind}:{name}:{messageID}           -> empty
//	meta:indexed                               -> empty, set once a full scan completed
type LocationIndex struct {
	db  *badger.DB
	log *slog.Logger
}

func NewLocationIndex(db *badger.DB, log *slog.Logger) *LocationIndex {
	return &LocationIndex{db: db, log: log}
}

func locationKey(id uuid.UUID, owner domain.Identity, direction domain.Direction) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s:%s", locationPrefix, id, owner.Kind.Segment(), direction, owner.Name))
}

func unreadOwnerPrefix(owner domain.Identity) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", unreadPrefix, owner.Kind.Segment(), owner.Name))
}

func unreadKey(owner domain.Identity, id uuid.UUID) []byte {
	return append(unreadOwnerPrefix(owner), []byte(id.String())...)
}

// Put records a copy of message id. The unread marker follows the copy's read flag
// and only exists for inbound copies.
func (l *LocationIndex) Put(id uuid.UUID, location Location, unread bool) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(locationKey(id, location.Owner, location.Direction), []byte(location.Day)); err != nil {
			return err
		}
		if location.Direction != domain.Inbound {
			return nil
		}
		if unread {
			return txn.Set(unreadKey(location.Owner, id), nil)
		}
		return txn.Delete(unreadKey(location.Owner, id))
	})
	return errors.NewStorageError("index put", id.String(), err)
}

// Locations returns every known copy of message id.
func (l *LocationIndex) Locations(id uuid.UUID) ([]Location, error) {
	var locations []Location
	prefix := []byte(fmt.Sprintf("%s%s:", locationPrefix, id))
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			location, err := parseLocationKey(string(item.Key()[len(prefix):]))
			if err != nil {
				l.log.Warn("Skipping malformed index key", "key", string(item.Key()), "error", err)
				continue
			}
			if err := item.Value(func(v []byte) error {
				location.Day = string(v)
				return nil
			}); err != nil {
				return err
			}
			locations = append(locations, location)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewStorageError("index lookup", id.String(), err)
	}
	return locations, nil
}

// parseLocationKey reads "{kind}:{direction}:{name}".
func parseLocationKey(rest string) (Location, error) {
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return Location{}, fmt.Errorf("expected 3 parts, got %d", len(parts))
	}
	kind, err := domain.ParseKind(parts[0])
	if err != nil {
		return Location{}, err
	}
	var direction domain.Direction
	switch parts[1] {
	case domain.Inbound.String():
		direction = domain.Inbound
	case domain.Outbound.String():
		direction = domain.Outbound
	default:
		return Location{}, fmt.Errorf("unknown direction %q", parts[1])
	}
	return Location{
		Owner:     domain.Identity{Kind: kind, Name: parts[2]},
		Direction: direction,
	}, nil
}

// SetRead drops the unread marker of owner's inbound copy.
func (l *LocationIndex) SetRead(owner domain.Identity, id uuid.UUID) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(unreadKey(owner, id))
	})
	return errors.NewStorageError("index set read", id.String(), err)
}

// HasUnread is an existence check on the owner's unread markers.
func (l *LocationIndex) HasUnread(owner domain.Identity) (bool, error) {
	found := false
	prefix := unreadOwnerPrefix(owner)
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(prefix)
		found = it.ValidForPrefix(prefix)
		return nil
	})
	if err != nil {
		return false, errors.NewStorageError("index has unread", owner.String(), err)
	}
	return found, nil
}

// IsBuilt tells whether a full scan of the storage tree has been recorded.
func (l *LocationIndex) IsBuilt() (bool, error) {
	built := false
	err := l.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(builtKey))
		switch {
		case err == nil:
			built = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return false, errors.NewStorageError("index status", "", err)
	}
	return built, nil
}

func (l *LocationIndex) MarkBuilt() error {
	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(builtKey), nil)
	})
	return errors.NewStorageError("index mark built", "", err)
}

// Reset drops every index entry. Group data shares the database and is kept.
func (l *LocationIndex) Reset() error {
	err := l.db.DropPrefix([]byte(locationPrefix), []byte(unreadPrefix), []byte(metaPrefix))
	return errors.NewStorageError("index reset", "", err)
}
