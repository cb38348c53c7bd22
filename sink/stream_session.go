// Package sink holds the live sessions the router pushes events into.
package sink

import (
	"context"
	"courier/domain"
	"courier/internal/ids"
	"fmt"
	"sync"
	"time"
)

var ErrSessionClosed = fmt.Errorf("session closed")

// StreamSession buffers events for one connected stream. The transport drains
// Events; Deliver gives up after the delivery timeout when the buffer stays full.
type StreamSession struct {
	id      string
	events  chan domain.Event
	timeout time.Duration

	once sync.Once
	done chan struct{}
}

func NewStreamSession(bufferSize int, timeout time.Duration) *StreamSession {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &StreamSession{
		id:      ids.NewSessionID(),
		events:  make(chan domain.Event, bufferSize),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

func (s *StreamSession) ID() string { return s.id }

// Events is drained by the stream handler.
func (s *StreamSession) Events() <-chan domain.Event { return s.events }

// Done is closed once the session is closed.
func (s *StreamSession) Done() <-chan struct{} { return s.done }

func (s *StreamSession) Deliver(ctx context.Context, e domain.Event) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	var expired <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	case <-expired:
		return fmt.Errorf("session %s: buffer full after %s", s.id, s.timeout)
	}
}

// Close is idempotent. Pending Deliver calls return ErrSessionClosed.
// The events channel is never closed, so a late Deliver cannot panic.
func (s *StreamSession) Close() {
	s.once.Do(func() { close(s.done) })
}
