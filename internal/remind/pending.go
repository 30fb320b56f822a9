package remind

import (
	"sync"
	"time"
)

// Pending is a resolved time or recurrence waiting for its message content.
// It is keyed by conversation, single use, and idle-expires.
type Pending struct {
	RequesterID int64
	TargetID    int64
	GroupID     int64

	At    time.Time // first (or only) fire time
	Rule  string    // empty for one-shot
	Label string

	created time.Time
}

// PendingStore holds at most one pending creation per conversation key.
// Starting a new creation in the same conversation replaces the old one.
type PendingStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]Pending
	ops     int
}

func NewPendingStore(ttl time.Duration) *PendingStore {
	return &PendingStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]Pending),
	}
}

func (p *PendingStore) Put(convKey string, pend Pending) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pend.created = p.now()
	p.entries[convKey] = pend
	p.pruneLocked()
}

// Peek returns the live pending entry without consuming it.
func (p *PendingStore) Peek(convKey string) (Pending, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pend, ok := p.entries[convKey]
	if !ok || p.expired(pend) {
		delete(p.entries, convKey)
		return Pending{}, false
	}
	return pend, true
}

// Take consumes the live pending entry for convKey. A second Take, or a
// Take after the idle TTL, finds nothing.
func (p *PendingStore) Take(convKey string) (Pending, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pend, ok := p.entries[convKey]
	if !ok {
		return Pending{}, false
	}
	delete(p.entries, convKey)
	if p.expired(pend) {
		return Pending{}, false
	}
	return pend, true
}

func (p *PendingStore) Drop(convKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, convKey)
}

func (p *PendingStore) expired(pend Pending) bool {
	return p.ttl > 0 && p.now().Sub(pend.created) > p.ttl
}

// pruneLocked sweeps expired entries every few writes so abandoned
// creations do not pile up.
func (p *PendingStore) pruneLocked() {
	p.ops++
	if p.ops%32 != 0 {
		return
	}
	for k, pend := range p.entries {
		if p.expired(pend) {
			delete(p.entries, k)
		}
	}
}
