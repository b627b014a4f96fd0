package entitlement

import (
	"sync"
	"time"
)

// Session is the simulator's per-requestor authentication state.
type Session struct {
	RequestorID     string
	ProviderID      string
	Authenticated   bool
	AuthenticatedAt time.Time
	Logins          map[string]Login
}

// Login is an interactive login started at a provider's login page.
type Login struct {
	State      string
	ProviderID string
	Completed  bool
	CreatedAt  time.Time
}

func (s Session) clone() Session {
	logins := make(map[string]Login, len(s.Logins))
	for k, l := range s.Logins {
		logins[k] = l
	}
	s.Logins = logins
	return s
}

// resetLogins discards every unfinished login.
func (s *Session) resetLogins() {
	s.Logins = make(map[string]Login)
}

// SessionStore keeps sessions by requestor and finds them again by the state
// of a login they started. Implementations copy sessions in and out, so a
// caller never shares a Logins map with the store.
type SessionStore interface {
	LoadSession(requestorID string) (Session, bool)
	SaveSession(s Session)
	SessionByLoginState(state string) (Session, bool)
	CountAuthenticated() int
}

// InMemorySessionStore is the process-local SessionStore.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	// login state -> requestor id
	states map[string]string
}

// NewInMemorySessionStore returns an empty store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]Session),
		states:   make(map[string]string),
	}
}

// LoadSession implements SessionStore.
func (s *InMemorySessionStore) LoadSession(requestorID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[requestorID]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// SaveSession implements SessionStore. Login states the saved session no
// longer holds stop resolving.
func (s *InMemorySessionStore) SaveSession(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sessions[sess.RequestorID]; ok {
		for state := range prev.Logins {
			delete(s.states, state)
		}
	}
	for state := range sess.Logins {
		s.states[state] = sess.RequestorID
	}
	s.sessions[sess.RequestorID] = sess.clone()
}

// SessionByLoginState implements SessionStore.
func (s *InMemorySessionStore) SessionByLoginState(state string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.states[state]
	if !ok {
		return Session{}, false
	}
	return s.sessions[id].clone(), true
}

// CountAuthenticated implements SessionStore.
func (s *InMemorySessionStore) CountAuthenticated() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.Authenticated {
			n++
		}
	}
	return n
}
