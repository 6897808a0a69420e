// Package guard enforces the at-most-one-active-execution-per-stream
// invariant under concurrent scheduler ticks and manual triggers.
package guard

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Token proves ownership of a stream's execution slot. Release only clears
// the lease if the token still matches, so a stale holder cannot free a
// lease that was reclaimed and re-issued.
type Token struct {
	StreamID string
	nonce    string
}

type lease struct {
	nonce   string
	expires time.Time
}

// Guard is an in-process leased test-and-set keyed by stream id. Leases
// carry a TTL so a crashed execution cannot hold the slot forever; expired
// leases are reclaimed on the next acquire.
type Guard struct {
	mu     sync.Mutex
	leases map[string]lease
	ttl    time.Duration
	now    func() time.Time
}

// New builds a guard with the given lease TTL.
func New(ttl time.Duration) *Guard {
	return &Guard{
		leases: make(map[string]lease),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TryAcquire attempts to claim the stream's execution slot. The second
// return value is false when an unexpired lease is already held.
func (g *Guard) TryAcquire(streamID string) (Token, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if l, ok := g.leases[streamID]; ok && now.Before(l.expires) {
		return Token{}, false
	}

	nonce := uuid.NewString()
	g.leases[streamID] = lease{nonce: nonce, expires: now.Add(g.ttl)}
	return Token{StreamID: streamID, nonce: nonce}, true
}

// Renew extends the lease for a long-running execution. Returns false if the
// lease was reclaimed in the meantime.
func (g *Guard) Renew(t Token) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.leases[t.StreamID]
	if !ok || l.nonce != t.nonce {
		return false
	}
	l.expires = g.now().Add(g.ttl)
	g.leases[t.StreamID] = l
	return true
}

// TTL returns the configured lease duration.
func (g *Guard) TTL() time.Duration { return g.ttl }

// Release frees the slot if the token still owns it.
func (g *Guard) Release(t Token) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.leases[t.StreamID]; ok && l.nonce == t.nonce {
		delete(g.leases, t.StreamID)
	}
}

// Held reports whether an unexpired lease exists for the stream.
func (g *Guard) Held(streamID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.leases[streamID]
	return ok && g.now().Before(l.expires)
}
