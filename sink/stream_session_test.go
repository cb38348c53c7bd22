package sink

import (
	"context"
	"courier/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func event(content string) domain.Event {
	return domain.MessageReceived{Message: domain.NewMessage(domain.User("alice"), domain.User("bob"), content, nil)}
}

func TestStreamSession_DeliverAndDrain(t *testing.T) {
	req := require.New(t)
	session := NewStreamSession(2, 50*time.Millisecond)
	req.NotEmpty(session.ID())

	req.NoError(session.Deliver(context.Background(), event("one")))
	req.NoError(session.Deliver(context.Background(), event("two")))

	req.Equal("one", (<-session.Events()).(domain.MessageReceived).Message.Content)
	req.Equal("two", (<-session.Events()).(domain.MessageReceived).Message.Content)
}

func TestStreamSession_FullBufferTimesOut(t *testing.T) {
	req := require.New(t)
	session := NewStreamSession(1, 20*time.Millisecond)

	// Given nobody drains the stream
	req.NoError(session.Deliver(context.Background(), event("one")))

	// When the buffer stays full
	err := session.Deliver(context.Background(), event("two"))

	// Then delivery gives up
	req.Error(err)
	req.Contains(err.Error(), "buffer full")
}

func TestStreamSession_Close(t *testing.T) {
	req := require.New(t)
	session := NewStreamSession(1, 0)
	req.NoError(session.Deliver(context.Background(), event("one")))

	// Given a delivery blocked on a full buffer
	blocked := make(chan error, 1)
	go func() {
		blocked <- session.Deliver(context.Background(), event("two"))
	}()
	time.Sleep(20 * time.Millisecond)

	// When the session closes
	session.Close()
	session.Close()

	// Then the blocked and later deliveries fail
	req.ErrorIs(<-blocked, ErrSessionClosed)
	req.ErrorIs(session.Deliver(context.Background(), event("three")), ErrSessionClosed)
	<-session.Done()
}

func TestStreamSession_SessionIDsAreUnique(t *testing.T) {
	req := require.New(t)
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id := NewStreamSession(1, 0).ID()
		_, dup := seen[id]
		req.False(dup)
		seen[id] = struct{}{}
	}
}
