package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is a map-backed Store. It honors the same TTL and scan semantics as
// the sqlite driver but is not durable; it exists for tests and dev runs.
type Memory struct {
	mu     sync.Mutex
	m      map[string]memEntry
	closed bool

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

type memEntry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

func NewMemory() *Memory {
	return &Memory{m: map[string]memEntry{}, Now: time.Now}
}

func (s *Memory) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	e, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !e.expires.After(s.Now()) {
		delete(s.m, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (s *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = s.Now().Add(ttl)
	}
	s.m[key] = e
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.m, key)
	return nil
}

func (s *Memory) Scan(_ context.Context, prefix, cursor string, limit int) ([]string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, "", ErrClosed
	}
	if limit <= 0 {
		limit = 100
	}
	now := s.Now()

	all := make([]string, 0, len(s.m))
	for k, e := range s.m {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !e.expires.IsZero() && !e.expires.After(now) {
			continue
		}
		if cursor != "" && k <= cursor {
			continue
		}
		all = append(all, k)
	}
	sort.Strings(all)

	if len(all) > limit {
		all = all[:limit]
		return all, all[len(all)-1], nil
	}
	return all, "", nil
}

// Len reports the number of live (non-expired) records.
func (s *Memory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	n := 0
	for _, e := range s.m {
		if e.expires.IsZero() || e.expires.After(now) {
			n++
		}
	}
	return n
}
