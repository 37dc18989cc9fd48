// Package locktest provides an in-memory lock.Store for tests.
package locktest

import (
	"context"
	"strings"
	"sync"
	"time"
)

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time

	// FailSetNX makes SetNX return this error for the listed keys
	FailSetNX map[string]error
	// FailDel makes every DelIfValue return this error
	FailDel error
}

type entry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]entry),
		now:       time.Now,
		FailSetNX: make(map[string]error),
	}
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.FailSetNX[key]; ok {
		return false, err
	}
	if e, ok := s.entries[key]; ok && s.now().Before(e.expiresAt) {
		return false, nil
	}
	s.entries[key] = entry{value: value, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) DelIfValue(_ context.Context, value string, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailDel != nil {
		return 0, s.FailDel
	}
	var n int64
	for _, k := range keys {
		if e, ok := s.entries[k]; ok && e.value == value && s.now().Before(e.expiresAt) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Put seeds a lock held by someone else
func (s *MemoryStore) Put(key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, expiresAt: s.now().Add(ttl)}
}

// KeysOwnedBy lists live keys whose value equals owner
func (s *MemoryStore) KeysOwnedBy(owner string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k, e := range s.entries {
		if e.value == owner && s.now().Before(e.expiresAt) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Keys lists live keys with the given prefix
func (s *MemoryStore) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k, e := range s.entries {
		if strings.HasPrefix(k, prefix) && s.now().Before(e.expiresAt) {
			keys = append(keys, k)
		}
	}
	return keys
}
