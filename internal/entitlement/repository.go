package entitlement

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnknownLogin is returned for a login state the repository never issued.
	ErrUnknownLogin = errors.New("entitlement: unknown login")

	// ErrLoginPending is returned when finalizing before the login page completed.
	ErrLoginPending = errors.New("entitlement: login not completed")

	// ErrNoSession is returned for a requestor that never called SetRequestor.
	ErrNoSession = errors.New("entitlement: no session for requestor")
)

// SessionRepository is a concurrency-safe store of sessions, shared by the
// engine and by the login pages.
type SessionRepository struct {
	mu    sync.RWMutex
	store SessionStore
	now   func() time.Time
}

// NewSessionRepository constructs a repository with a default in-memory store.
func NewSessionRepository() *SessionRepository {
	return NewSessionRepositoryWithStore(NewInMemorySessionStore())
}

// NewSessionRepositoryWithStore constructs a repository that uses the given store.
func NewSessionRepositoryWithStore(store SessionStore) *SessionRepository {
	return &SessionRepository{store: store, now: time.Now}
}

// Open returns the session for requestorID, creating it if needed.
func (r *SessionRepository) Open(requestorID string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.store.LoadSession(requestorID); ok {
		return s
	}
	s := Session{RequestorID: requestorID}
	s.resetLogins()
	r.store.SaveSession(s)
	return s.clone()
}

// Get returns a copy of the session for requestorID.
func (r *SessionRepository) Get(requestorID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.LoadSession(requestorID)
}

// SelectProvider records providerID as selected. An empty id clears the
// selection and any unfinished logins.
func (r *SessionRepository) SelectProvider(requestorID, providerID string) error {
	return r.modify(requestorID, func(s *Session) error {
		s.ProviderID = providerID
		if providerID == "" {
			s.resetLogins()
		}
		return nil
	})
}

// Authenticate marks the session authenticated with providerID.
func (r *SessionRepository) Authenticate(requestorID, providerID string) error {
	return r.modify(requestorID, func(s *Session) error {
		s.ProviderID = providerID
		s.Authenticated = true
		s.AuthenticatedAt = r.now().UTC()
		return nil
	})
}

// BeginLogin starts an interactive login and returns its state token.
func (r *SessionRepository) BeginLogin(requestorID, providerID string) (Login, error) {
	var l Login
	err := r.modify(requestorID, func(s *Session) error {
		l = Login{State: uuid.NewString(), ProviderID: providerID, CreatedAt: r.now().UTC()}
		s.Logins[l.State] = l
		return nil
	})
	return l, err
}

// CompleteLogin marks the login identified by state as completed by the user.
// Completing twice is a no-op.
func (r *SessionRepository) CompleteLogin(state string) (Login, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.store.SessionByLoginState(state)
	if !ok {
		return Login{}, ErrUnknownLogin
	}
	l := s.Logins[state]
	l.Completed = true
	s.Logins[state] = l
	r.store.SaveSession(s)
	return l, nil
}

// FinalizeLogin authenticates the session with the selected provider once
// one of its logins completed. Pending logins are discarded.
func (r *SessionRepository) FinalizeLogin(requestorID string) (string, error) {
	var providerID string
	err := r.modify(requestorID, func(s *Session) error {
		for _, l := range s.Logins {
			if l.Completed && l.ProviderID == s.ProviderID {
				s.Authenticated = true
				s.AuthenticatedAt = r.now().UTC()
				s.resetLogins()
				providerID = s.ProviderID
				return nil
			}
		}
		return ErrLoginPending
	})
	return providerID, err
}

// Logout clears authentication and the selected provider.
func (r *SessionRepository) Logout(requestorID string) error {
	return r.modify(requestorID, func(s *Session) error {
		s.Authenticated = false
		s.AuthenticatedAt = time.Time{}
		s.ProviderID = ""
		s.resetLogins()
		return nil
	})
}

// AuthenticatedCount returns the number of authenticated sessions.
func (r *SessionRepository) AuthenticatedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.CountAuthenticated()
}

// modify loads the session, applies fn and saves the result. Nothing is
// saved when fn fails.
func (r *SessionRepository) modify(requestorID string, fn func(s *Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.store.LoadSession(requestorID)
	if !ok {
		return ErrNoSession
	}
	if err := fn(&s); err != nil {
		return err
	}
	r.store.SaveSession(s)
	return nil
}
