// Package projection builds local timelines from observed events.
// Handles ordering and deduplication; a message seen twice (backlog then
// live push) appears once.
package projection

import (
	"courier/domain"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Timeline holds the messages one connected identity has observed, oldest first.
type Timeline struct {
	mu       sync.RWMutex
	seen     map[uuid.UUID]struct{}
	messages []domain.Message
}

func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[uuid.UUID]struct{})}
}

// Consume records the message carried by e. It reports false for duplicates
// and for events carrying no message.
func (t *Timeline) Consume(e domain.Event) bool {
	var message domain.Message
	switch evt := e.(type) {
	case domain.MessageReceived:
		message = evt.Message
	case domain.GroupMessageReceived:
		message = evt.Message
	default:
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[message.ID]; ok {
		return false
	}
	t.seen[message.ID] = struct{}{}

	i := sort.Search(len(t.messages), func(i int) bool {
		return before(message, t.messages[i])
	})
	t.messages = append(t.messages, domain.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = message
	return true
}

// Messages returns a copy of the timeline.
func (t *Timeline) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.Message(nil), t.messages...)
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

func before(a, b domain.Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID.String() < b.ID.String()
}
