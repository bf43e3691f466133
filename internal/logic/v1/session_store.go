package v1

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState is the authoritative state of a login session. Expiry is not
// a stored state: it is an absolute-time transition evaluated lazily on
// every access, after which the record is evicted.
type SessionState int

const (
	// StatePending means the session was generated and no identity has
	// been attached yet.
	StatePending SessionState = iota
	// StateConfirmed means an identity was attached, either by a
	// scanning device (confirm) or directly by a client (bind).
	StateConfirmed
)

func (s SessionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Identity is the typed identity attached to a confirmed session. Two
// identities are the same owner iff their UserID values are equal.
type Identity struct {
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name,omitempty"`
	Token       string    `json:"user_token,omitempty"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Owns reports whether this identity owns the record stamped with ownerID.
func (i Identity) Owns(ownerID string) bool {
	return i.UserID == ownerID
}

// Session is a single login attempt tracked by the store. Values returned
// by store methods are copies; mutation goes through Mutate.
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	State     SessionState
	Identity  *Identity
}

// SessionStore is the in-memory, process-local home of login sessions.
// It owns the records for their whole lifetime: all mutations are serialized
// under its lock, and expiry is detected lazily on access (Get/Mutate) or by
// an optional periodic Sweep.
//
// Construct one per process and inject it; there is no package-level store.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration

	// now is a hook for tests; defaults to time.Now.
	now func() time.Time
}

// NewSessionStore creates an empty store whose sessions live for ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create allocates a new pending session and returns a copy of it.
// It always succeeds.
func (st *SessionStore) Create() Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(st.ttl),
		State:     StatePending,
	}
	st.sessions[s.ID] = s
	return copySession(s)
}

// Get returns a copy of the session with the given id.
// A session past its expiry is evicted on this access and reported as
// ErrSessionExpired; an absent id is ErrSessionNotFound.
func (st *SessionStore) Get(id string) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, err := st.lookupLocked(id)
	if err != nil {
		return Session{}, err
	}
	return copySession(s), nil
}

// Mutate applies fn to the session under the store lock and returns a copy
// of the result. The same not-found/expired semantics as Get apply before
// fn runs; an error from fn aborts the mutation and is returned unchanged.
func (st *SessionStore) Mutate(id string, fn func(*Session) error) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, err := st.lookupLocked(id)
	if err != nil {
		return Session{}, err
	}
	if err := fn(s); err != nil {
		return Session{}, err
	}
	return copySession(s), nil
}

// Evict removes the session unconditionally.
func (st *SessionStore) Evict(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Sweep evicts every expired session and returns how many were removed.
// Lazy eviction keeps the store correct without it; Sweep only bounds the
// memory held by sessions nobody polls again.
func (st *SessionStore) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	evicted := 0
	for id, s := range st.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(st.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live (possibly expired, not yet evicted) sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// lookupLocked resolves id to a live session, evicting on detected expiry.
// Callers must hold st.mu.
func (st *SessionStore) lookupLocked(id string) (*Session, error) {
	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
	}
	if !st.now().Before(s.ExpiresAt) {
		delete(st.sessions, id)
		return nil, fmt.Errorf("session %q: %w", id, ErrSessionExpired)
	}
	return s, nil
}

func copySession(s *Session) Session {
	out := *s
	if s.Identity != nil {
		ident := *s.Identity
		out.Identity = &ident
	}
	return out
}
