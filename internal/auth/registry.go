package auth

import (
	"sync"
	"time"
)

// ResolveStatus reports the outcome of a registry token resolution.
type ResolveStatus int

const (
	// ResolveOK means the token mapped to a live client.
	ResolveOK ResolveStatus = iota
	// ResolveUnknown means the token is absent from the registry.
	ResolveUnknown
	// ResolveExpired means the token was present but its idle window had
	// elapsed; the entry has been evicted.
	ResolveExpired
)

// Registry is the in-memory store of active authenticated clients keyed by
// bearer token. It is owned by the Authenticator; every mutation happens
// inside one critical section so the no-duplicate-token and
// single-session-per-identity invariants hold under concurrent requests.
type Registry struct {
	mu      sync.Mutex
	clients map[string]Client
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Resolve looks up the token, evaluates expiry lazily, and records activity
// on success. Expired entries are evicted on read; there is no background
// sweep.
func (r *Registry) Resolve(token string, now time.Time) (Client, ResolveStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[token]
	if !ok {
		return nil, ResolveUnknown
	}
	if client.Expired(now) {
		delete(r.clients, token)
		return nil, ResolveExpired
	}
	if session, ok := client.(*UserSession); ok {
		session.touch(now)
	}
	return client, ResolveOK
}

// InsertUserSession stores the session, first evicting any existing session
// for the same provider identity so at most one session per identity is
// active.
func (r *Registry) InsertUserSession(session *UserSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, existing := range r.clients {
		if existing.Kind() == KindUser && existing.Identity() == session.Identity() {
			delete(r.clients, token)
		}
	}
	r.clients[session.Token()] = session
}

// ReplaceServiceClients atomically swaps the full service client set for the
// provided token to identity mapping. User sessions are untouched, and
// readers never observe a registry without any service entry mid-swap.
func (r *Registry) ReplaceServiceClients(credentials map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, existing := range r.clients {
		if existing.Kind() == KindService {
			delete(r.clients, token)
		}
	}
	for token, identityName := range credentials {
		r.clients[token] = NewServiceClient(token, identityName)
	}
}

// Remove evicts the token if present.
func (r *Registry) Remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, token)
}

// Counts reports the number of service clients and user sessions currently
// registered.
func (r *Registry) Counts() (services, sessions int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, client := range r.clients {
		switch client.Kind() {
		case KindService:
			services++
		case KindUser:
			sessions++
		}
	}
	return services, sessions
}
