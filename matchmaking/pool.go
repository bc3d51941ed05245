// Package matchmaking holds the waiting pool of players seeking an opponent
// and the periodic scheduler that pairs them.
package matchmaking

import (
	"sync"
	"time"

	"codeduel-server/duelerrors"
)

// Conn is the outbound side of a player connection as seen by matchmaking
// and the match engine.
type Conn interface {
	// Deliver queues data for the player without blocking. Messages to a
	// closed or saturated connection are dropped.
	Deliver(data []byte)
	// Close tears down the underlying connection.
	Close()
}

// Entry is one player waiting in the pool.
type Entry struct {
	ID       string
	Name     string
	PhotoURL string
	Rating   int
	JoinedAt time.Time
	Conn     Conn
}

// Pool is the set of players currently seeking an opponent. All methods are
// safe for concurrent use; a scheduler tick's snapshot-and-remove cycle never
// loses or duplicates entries that join mid-tick.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{entries: make(map[string]*Entry)}
}

// Join inserts an entry. A duplicate join for an identity already in the
// pool is a caller error and is rejected.
func (p *Pool) Join(e *Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[e.ID]; ok {
		return duelerrors.ErrAlreadyQueued
	}
	p.entries[e.ID] = e
	return nil
}

// Leave removes an entry if present; no-op otherwise.
func (p *Pool) Leave(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
}

// Snapshot returns a stable copy of the current entries for one scheduler
// tick.
func (p *Pool) Snapshot() []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	return out
}

// RemovePaired removes exactly the given identities. Entries that joined
// after the tick's snapshot are unaffected.
func (p *Pool) RemovePaired(ids map[string]struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range ids {
		delete(p.entries, id)
	}
}

// Len returns the number of waiting players.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
