package storage

import (
	"context"
	"courier/domain"
	"courier/errors"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const (
	fieldOwner     = "owner"
	fieldDirection = "direction"
	fieldMessageID = "message_id"
	fieldDay       = "day"
	fieldContent   = "content"
)

// SearchHit points at one stored copy matching a search.
type SearchHit struct {
	ID        uuid.UUID
	Direction domain.Direction
	Day       string
}

// SearchIndex is a full-text index over message content, one document per copy.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

// OpenSearchIndex opens a persistent index at path, or an in-memory one when path is empty.
func OpenSearchIndex(path string, log *slog.Logger) (*SearchIndex, error) {
	config := bluge.InMemoryOnlyConfig()
	if path != "" {
		config = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(config)
	if err != nil {
		return nil, errors.NewStorageError("open search index", path, err)
	}
	return &SearchIndex{writer: writer, log: log}, nil
}

func documentID(owner domain.Identity, direction domain.Direction, id uuid.UUID) string {
	return fmt.Sprintf("%s/%s/%s", owner, direction, id)
}

// Index adds or replaces the document of one copy.
func (s *SearchIndex) Index(owner domain.Identity, direction domain.Direction, message domain.Message) error {
	doc := bluge.NewDocument(documentID(owner, direction, message.ID)).
		AddField(bluge.NewKeywordField(fieldOwner, owner.String()).StoreValue()).
		AddField(bluge.NewKeywordField(fieldDirection, direction.String()).StoreValue()).
		AddField(bluge.NewKeywordField(fieldMessageID, message.ID.String()).StoreValue()).
		AddField(bluge.NewKeywordField(fieldDay, message.Day()).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, message.Content))
	if err := s.writer.Update(doc.ID(), doc); err != nil {
		return errors.NewStorageError("search index update", message.ID.String(), err)
	}
	return nil
}

// Search returns owner's copies whose content matches text, best matches first.
func (s *SearchIndex) Search(ctx context.Context, owner domain.Identity, text string, limit int) ([]SearchHit, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, errors.NewStorageError("search reader", "", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(owner.String()).SetField(fieldOwner)).
		AddMust(bluge.NewMatchQuery(text).SetField(fieldContent))
	request := bluge.NewTopNSearch(limit, query)

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, errors.NewStorageError("search", owner.String(), err)
	}

	var hits []SearchHit
	match, err := matches.Next()
	for err == nil && match != nil {
		var hit SearchHit
		var parseErr error
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldMessageID:
				hit.ID, parseErr = uuid.ParseBytes(value)
			case fieldDirection:
				if string(value) == domain.Outbound.String() {
					hit.Direction = domain.Outbound
				} else {
					hit.Direction = domain.Inbound
				}
			case fieldDay:
				hit.Day = string(value)
			}
			return parseErr == nil
		})
		if visitErr != nil || parseErr != nil {
			s.log.Warn("Skipping malformed search document", "error", errors.Join(visitErr, parseErr))
		} else {
			hits = append(hits, hit)
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, errors.NewStorageError("search iterate", owner.String(), err)
	}
	return hits, nil
}

func (s *SearchIndex) Close() error {
	return s.writer.Close()
}
