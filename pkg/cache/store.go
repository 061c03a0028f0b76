package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value   string
	expires time.Time // zero never expires
}

// Store is a size-bounded LRU of completions. Expired entries are dropped
// when looked up or by Prune; there is no background sweeper.
type Store struct {
	mu    sync.Mutex
	lru   *lru.Cache[Key, entry]
	ttl   time.Duration
	now   func() time.Time
	stats Stats
}

func NewStore(size int, ttl time.Duration) (*Store, error) {
	l, err := lru.New[Key, entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Store{
		lru:   l,
		ttl:   ttl,
		now:   time.Now,
		stats: Stats{MaxSize: size},
	}, nil
}

func (s *Store) expired(e entry) bool {
	return !e.expires.IsZero() && !s.now().Before(e.expires)
}

// Get returns the live value stored under key.
func (s *Store) Get(key Key) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Get(key)
	switch {
	case !ok:
		s.stats.Misses++
		return "", false
	case s.expired(e):
		s.lru.Remove(key)
		s.stats.Expirations++
		s.stats.Misses++
		return "", false
	}
	s.stats.Hits++
	return e.value, true
}

// Put stores value under key, evicting the least recently used entry when
// the store is full.
func (s *Store) Put(key Key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: value}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	if s.lru.Add(key, e) {
		s.stats.Evictions++
	}
}

func (s *Store) Remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Remove(key)
}

// Purge drops every entry. Counters are kept.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Purge()
}

// Prune drops expired entries and returns how many it removed.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, key := range s.lru.Keys() {
		if e, ok := s.lru.Peek(key); ok && s.expired(e) {
			s.lru.Remove(key)
			n++
		}
	}
	s.stats.Expirations += int64(n)
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Size = s.lru.Len()
	return st
}
