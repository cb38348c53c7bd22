package storage

import (
	"context"
	"courier/domain"
	"courier/errors"
	"courier/internal/jsoncodec"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const messageExt = ".json"

// FileStore keeps one JSON file per message copy:
//
//	<root>/{user|service|group}/{name}/{inbound|outbound}/{yyyy-MM-dd}/{messageID}.json
//
// The tree is the source of truth. LocationIndex and SearchIndex are derived
// from it and can be rebuilt with Reindex.
type FileStore struct {
	root   string
	index  *LocationIndex
	search *SearchIndex
	log    *slog.Logger
}

// NewFileStore creates the root directory if needed. search may be nil, in
// which case Search reports the feature as unavailable.
func NewFileStore(root string, index *LocationIndex, search *SearchIndex, log *slog.Logger) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: storage root is required", errors.ErrInvalidArgument)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.NewStorageError("mkdir", root, err)
	}
	return &FileStore{root: root, index: index, search: search, log: log}, nil
}

func (s *FileStore) Root() string { return s.root }

func (s *FileStore) directionDir(owner domain.Identity, direction domain.Direction) string {
	return filepath.Join(s.root, owner.Kind.Segment(), owner.Name, direction.String())
}

// MessagePath returns the file holding owner's copy of the message.
func (s *FileStore) MessagePath(owner domain.Identity, direction domain.Direction, day string, id uuid.UUID) string {
	return filepath.Join(s.directionDir(owner, direction), day, id.String()+messageExt)
}

// Append writes the copy atomically (temp file + rename), so a retry with the
// same identifier overwrites instead of duplicating and a cancelled call leaves
// no partial file behind. A copy already marked read stays read.
func (s *FileStore) Append(ctx context.Context, owner domain.Identity, direction domain.Direction, message domain.Message) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	if !direction.Valid() {
		return fmt.Errorf("%w: direction is missing", errors.ErrInvalidArgument)
	}
	if message.ID == uuid.Nil {
		return fmt.Errorf("%w: message identifier is missing", errors.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	day := message.Day()
	path := s.MessagePath(owner, direction, day, message.ID)
	existing, err := readMessage(path)
	switch {
	case err == nil:
		message.IsRead = message.IsRead || existing.IsRead
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	data, err := jsoncodec.Marshal(message)
	if err != nil {
		return errors.NewStorageError("encode", message.ID.String(), err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}

	location := Location{Owner: owner, Direction: direction, Day: day}
	if err := s.index.Put(message.ID, location, !message.IsRead); err != nil {
		return err
	}

	if s.search != nil {
		if err := s.search.Index(owner, direction, message); err != nil {
			s.log.Warn("Search indexing failed", "message_id", message.ID, "owner", owner.String(), "error", err)
		}
	}

	s.log.Debug("Message appended", "owner", owner.String(), "direction", direction.String(), "message_id", message.ID)
	return nil
}

// Query reads the requested day partitions and returns the copies ordered by
// timestamp, ties broken by identifier so the order never depends on
// directory listing order.
func (s *FileStore) Query(ctx context.Context, query domain.MessageQuery) ([]domain.Message, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	dir := s.directionDir(query.Owner, query.Direction)
	days, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Message{}, nil
		}
		return nil, errors.NewStorageError("list days", dir, err)
	}

	fromDay := query.FromDay()
	messages := make([]domain.Message, 0)
	for _, day := range days {
		if !day.IsDir() || !isDayPartition(day.Name()) {
			continue
		}
		if fromDay != "" && day.Name() < fromDay {
			continue
		}
		dayMessages, err := s.readDay(ctx, filepath.Join(dir, day.Name()))
		if err != nil {
			return nil, err
		}
		messages = append(messages, dayMessages...)
	}

	if query.UnreadOnly {
		messages = lo.Filter(messages, func(m domain.Message, _ int) bool { return !m.IsRead })
	}
	sortMessages(messages)
	return messages, nil
}

func (s *FileStore) readDay(ctx context.Context, dir string) ([]domain.Message, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStorageError("list messages", dir, err)
	}
	var messages []domain.Message
	for _, entry := range entries {
		if !isMessageFile(entry) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		message, err := readMessage(filepath.Join(dir, entry.Name()))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// MarkRead flips the read flag on every copy of the message.
func (s *FileStore) MarkRead(ctx context.Context, id uuid.UUID) error {
	locations, err := s.index.Locations(id)
	if err != nil {
		return err
	}
	if len(locations) == 0 {
		return fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	for _, location := range locations {
		if err := s.markCopyRead(ctx, location, id); err != nil {
			return err
		}
	}
	return nil
}

// MarkReadFor flips the read flag of owner's inbound copy only, leaving other
// recipients of the same message untouched.
func (s *FileStore) MarkReadFor(ctx context.Context, owner domain.Identity, id uuid.UUID) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	locations, err := s.index.Locations(id)
	if err != nil {
		return err
	}
	owned := lo.Filter(locations, func(l Location, _ int) bool {
		return l.Owner == owner && l.Direction == domain.Inbound
	})
	if len(owned) == 0 {
		return fmt.Errorf("%w: message %s for %s", errors.ErrNotFound, id, owner)
	}
	for _, location := range owned {
		if err := s.markCopyRead(ctx, location, id); err != nil {
			return err
		}
	}
	return nil
}

// markCopyRead is a no-op on a copy already read, which keeps MarkRead idempotent.
func (s *FileStore) markCopyRead(ctx context.Context, location Location, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.MessagePath(location.Owner, location.Direction, location.Day, id)
	message, err := readMessage(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: message %s at %s", errors.ErrNotFound, id, path)
		}
		return err
	}
	if !message.IsRead {
		message.IsRead = true
		data, err := jsoncodec.Marshal(message)
		if err != nil {
			return errors.NewStorageError("encode", id.String(), err)
		}
		if err := writeFileAtomic(path, data); err != nil {
			return err
		}
	}
	if location.Direction == domain.Inbound {
		return s.index.SetRead(location.Owner, id)
	}
	return nil
}

// HasUnread answers from the unread markers without reading any message file.
func (s *FileStore) HasUnread(_ context.Context, owner domain.Identity) (bool, error) {
	if err := owner.Validate(); err != nil {
		return false, err
	}
	return s.index.HasUnread(owner)
}

// Search resolves content hits from the search index back to stored copies.
func (s *FileStore) Search(ctx context.Context, cmd domain.SearchCommand) ([]domain.Message, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if s.search == nil {
		return nil, fmt.Errorf("%w: search is disabled", errors.ErrInvalidArgument)
	}
	hits, err := s.search.Search(ctx, cmd.Owner, cmd.Text, cmd.Limit)
	if err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0, len(hits))
	for _, hit := range hits {
		message, err := readMessage(s.MessagePath(cmd.Owner, hit.Direction, hit.Day, hit.ID))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				s.log.Debug("Stale search hit", "message_id", hit.ID)
				continue
			}
			return nil, err
		}
		messages = append(messages, message)
	}
	sortMessages(messages)
	return messages, nil
}

// EnsureIndexed runs Reindex once, the first time the store is opened against
// an index that never completed a scan.
func (s *FileStore) EnsureIndexed(ctx context.Context) error {
	built, err := s.index.IsBuilt()
	if err != nil {
		return err
	}
	if built {
		return nil
	}
	count, err := s.Reindex(ctx)
	if err != nil {
		return err
	}
	s.log.Info("Message index built", "messages", count)
	return nil
}

// Reindex rebuilds the location and unread index (and the search index when
// enabled) with a single walk of the storage tree.
func (s *FileStore) Reindex(ctx context.Context) (int, error) {
	if err := s.index.Reset(); err != nil {
		return 0, err
	}
	count := 0
	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !isMessageFile(entry) {
			return nil
		}
		owner, direction, day, ok := s.parsePath(path)
		if !ok {
			s.log.Debug("Skipping file outside the storage layout", "path", path)
			return nil
		}
		message, err := readMessage(path)
		if err != nil {
			s.log.Warn("Skipping unreadable message file", "path", path, "error", err)
			return nil
		}
		if err := s.index.Put(message.ID, Location{Owner: owner, Direction: direction, Day: day}, !message.IsRead); err != nil {
			return err
		}
		if s.search != nil {
			if err := s.search.Index(owner, direction, message); err != nil {
				return err
			}
		}
		count++
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		return count, errors.NewStorageError("reindex", s.root, err)
	}
	return count, s.index.MarkBuilt()
}

// parsePath extracts the owner, direction and day of a message file.
func (s *FileStore) parsePath(path string) (domain.Identity, domain.Direction, string, bool) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return domain.Identity{}, 0, "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 5 {
		return domain.Identity{}, 0, "", false
	}
	kind, err := domain.ParseKind(parts[0])
	if err != nil {
		return domain.Identity{}, 0, "", false
	}
	var direction domain.Direction
	switch parts[2] {
	case domain.Inbound.String():
		direction = domain.Inbound
	case domain.Outbound.String():
		direction = domain.Outbound
	default:
		return domain.Identity{}, 0, "", false
	}
	if !isDayPartition(parts[3]) {
		return domain.Identity{}, 0, "", false
	}
	return domain.Identity{Kind: kind, Name: parts[1]}, direction, parts[3], true
}

func readMessage(path string) (domain.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Message{}, err
		}
		return domain.Message{}, errors.NewStorageError("read", path, err)
	}
	var message domain.Message
	if err := jsoncodec.Unmarshal(data, &message); err != nil {
		return domain.Message{}, errors.NewStorageError("decode", path, err)
	}
	return message, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewStorageError("mkdir", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.NewStorageError("create", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func(cause error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.NewStorageError("write", path, cause)
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.NewStorageError("write", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.NewStorageError("rename", path, err)
	}
	return nil
}

func isMessageFile(entry fs.DirEntry) bool {
	name := entry.Name()
	return !entry.IsDir() && !strings.HasPrefix(name, ".") && strings.HasSuffix(name, messageExt)
}

func isDayPartition(name string) bool {
	_, err := time.Parse(domain.DayLayout, name)
	return err == nil
}

func sortMessages(messages []domain.Message) {
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].Timestamp.Equal(messages[j].Timestamp) {
			return messages[i].Timestamp.Before(messages[j].Timestamp)
		}
		return messages[i].ID.String() < messages[j].ID.String()
	})
}
