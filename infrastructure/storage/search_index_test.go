package storage

import (
	"context"
	"courier/domain"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchIndex_ScopesHitsToOwner(t *testing.T) {
	req := require.New(t)
	index, err := OpenSearchIndex("", slog.Default())
	req.NoError(err)
	t.Cleanup(func() { index.Close() })
	ctx := context.Background()
	alice, bob := domain.User("alice"), domain.User("bob")

	// Given the same message indexed for both copies, plus an unrelated one
	m := domain.NewMessage(alice, bob, "quarterly report is ready", nil)
	other := domain.NewMessage(bob, alice, "lunch tomorrow?", nil)
	req.NoError(index.Index(alice, domain.Outbound, m))
	req.NoError(index.Index(bob, domain.Inbound, m))
	req.NoError(index.Index(alice, domain.Inbound, other))

	// When bob searches
	hits, err := index.Search(ctx, bob, "report", 10)

	// Then only the inbound copy bob owns comes back
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(m.ID, hits[0].ID)
	req.Equal(domain.Inbound, hits[0].Direction)
	req.Equal(m.Day(), hits[0].Day)

	// Re-indexing the same copy does not duplicate it
	req.NoError(index.Index(bob, domain.Inbound, m))
	hits, err = index.Search(ctx, bob, "report", 10)
	req.NoError(err)
	req.Len(hits, 1)

	hits, err = index.Search(ctx, alice, "nothing matches this", 10)
	req.NoError(err)
	req.Empty(hits)
}
