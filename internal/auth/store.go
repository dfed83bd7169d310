package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// IdentityStore persists registered identities in process memory: the
// salt and verifier pair each identity's SRP-6a exchanges are checked
// against (spec.md §4.10 REGISTER). Production deployments would back
// this with the durable store hinted at by the original's identity
// table; this in-process map is sufficient for a single hub instance.
type IdentityStore struct {
	mu   sync.RWMutex
	rows map[string]Verifier
}

// NewIdentityStore returns an empty store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{rows: make(map[string]Verifier)}
}

// Register records (or overwrites) an identity's salt and verifier.
func (s *IdentityStore) Register(identity string, v Verifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[identity] = v
}

// Lookup returns the stored verifier for identity, if any.
func (s *IdentityStore) Lookup(identity string) (Verifier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.rows[identity]
	return v, ok
}

// pendingExchange is one in-flight TOKEN exchange between Begin and
// VerifyClientProof, kept alive just long enough to receive the
// client's second round-trip.
type pendingExchange struct {
	session *HostSession
	expires time.Time
}

// SessionStore correlates the two round trips of an SRP-6a TOKEN
// exchange (Begin, then VerifyClientProof) by an opaque token, since the
// hub's connection handling is otherwise stateless between requests.
// Grounded on the teacher's watcher.GuestRing lease-by-deadline pattern,
// applied here to an in-flight handshake instead of an unauthenticated
// connection.
type SessionStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]pendingExchange
	ttl     time.Duration
}

// NewSessionStore returns a store whose entries expire after ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{entries: make(map[uuid.UUID]pendingExchange), ttl: ttl}
}

// Put stores session under a freshly minted token and returns it.
func (s *SessionStore) Put(session *HostSession) uuid.UUID {
	token := uuid.New()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = pendingExchange{session: session, expires: time.Now().Add(s.ttl)}
	return token
}

// Take removes and returns the session for token, if present and not
// expired. A token is usable exactly once.
func (s *SessionStore) Take(token uuid.UUID) (*HostSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	delete(s.entries, token)
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.session, true
}

// Reap drops expired entries; call periodically from the hub's
// maintenance cycle so an abandoned handshake doesn't linger forever.
func (s *SessionStore) Reap(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, entry := range s.entries {
		if now.After(entry.expires) {
			delete(s.entries, token)
		}
	}
}
