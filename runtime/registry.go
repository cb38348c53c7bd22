package runtime

import (
	"courier/contract"
	"courier/domain"
	"log/slog"
	"sync"
)

// slot holds the live session of one identity. Binds and unbinds of the
// same identity serialize on it.
type slot struct {
	mu      sync.Mutex
	session contract.Session
	removed bool
}

// ConnectionRegistry maps identities to their live session. The slot map
// is only write-locked to create or drop a slot, so unrelated identities
// never wait on each other.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	log   *slog.Logger
	slots map[domain.Identity]*slot
}

func NewConnectionRegistry(log *slog.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		log:   log,
		slots: make(map[domain.Identity]*slot),
	}
}

// Bind registers session for identity and returns the session it replaced, if any.
func (r *ConnectionRegistry) Bind(identity domain.Identity, session contract.Session) contract.Session {
	for {
		s := r.slotFor(identity)
		s.mu.Lock()
		if s.removed {
			// Dropped by a concurrent Unbind between lookup and lock
			s.mu.Unlock()
			continue
		}
		previous := s.session
		s.session = session
		s.mu.Unlock()

		if previous != nil {
			r.log.Info("Session replaced", "identity", identity.String(), "previous", previous.ID(), "session", session.ID())
		} else {
			r.log.Debug("Session bound", "identity", identity.String(), "session", session.ID())
		}
		return previous
	}
}

// Unbind removes the mapping only when it still points at session, so a
// stale disconnect cannot evict a fresh reconnect.
func (r *ConnectionRegistry) Unbind(identity domain.Identity, session contract.Session) bool {
	r.mu.RLock()
	s, ok := r.slots[identity]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.removed || s.session == nil || s.session.ID() != session.ID() {
		s.mu.Unlock()
		return false
	}
	s.session = nil
	s.mu.Unlock()

	r.drop(identity, s)
	r.log.Debug("Session unbound", "identity", identity.String(), "session", session.ID())
	return true
}

func (r *ConnectionRegistry) Lookup(identity domain.Identity) (contract.Session, bool) {
	r.mu.RLock()
	s, ok := r.slots[identity]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.session != nil
}

// Count returns the number of identities with a live session.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	slots := make([]*slot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	count := 0
	for _, s := range slots {
		s.mu.Lock()
		if s.session != nil {
			count++
		}
		s.mu.Unlock()
	}
	return count
}

func (r *ConnectionRegistry) slotFor(identity domain.Identity) *slot {
	r.mu.RLock()
	s, ok := r.slots[identity]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.slots[identity]; !ok {
		s = &slot{}
		r.slots[identity] = s
	}
	return s
}

// drop deletes an empty slot. Lock order is map then slot.
func (r *ConnectionRegistry) drop(identity domain.Identity, s *slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil && !s.removed && r.slots[identity] == s {
		s.removed = true
		delete(r.slots, identity)
	}
}
