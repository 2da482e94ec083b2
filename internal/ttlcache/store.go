// Package ttlcache implements a namespaced, in-memory cache with a single
// fixed expiry duration.
//
// Expiry is lazy: an entry older than the TTL is removed by the Get that
// finds it. There is no janitor goroutine, so entries that are never read
// again stay resident until Clear or Purge drops them.
package ttlcache

import (
	"sync"
	"time"
)

// DefaultTTL is applied when Options.TTL is zero.
const DefaultTTL = 5 * time.Minute

// Observer receives per-namespace lookup outcomes. Calls are made while the
// store lock is held and must not call back into the store.
type Observer interface {
	Hit(ns Namespace)
	Miss(ns Namespace)
	Expired(ns Namespace)
}

// Options configures a Store.
type Options struct {
	// TTL is the maximum age of an entry since its last Put.
	TTL time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
	// Observer is notified of hits, misses and expirations. Optional.
	Observer Observer
}

type entry struct {
	value   any
	written time.Time
}

// Store is a namespaced TTL cache. It is safe for concurrent use; a single
// mutex guards every namespace.
type Store struct {
	mu     sync.Mutex
	spaces [numNamespaces]map[string]entry
	// gens counts Clear and Purge calls per namespace.
	gens [numNamespaces]uint64
	ttl    time.Duration
	now    func() time.Time
	obs    Observer
}

// New returns an empty Store.
func New(opts Options) *Store {
	s := &Store{
		ttl: opts.TTL,
		now: opts.Now,
		obs: opts.Observer,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	for i := range s.spaces {
		s.spaces[i] = make(map[string]entry)
	}
	return s
}

// TTL returns the expiry duration shared by all namespaces.
func (s *Store) TTL() time.Duration { return s.ttl }

// Get returns the value stored under key in ns. An entry whose age exceeds
// the TTL is deleted and reported as absent.
func (s *Store) Get(ns Namespace, key string) (any, bool) {
	return s.lookup(ns, key, s.obs)
}

// peek is Get without observer callbacks.
func (s *Store) peek(ns Namespace, key string) (any, bool) {
	return s.lookup(ns, key, nil)
}

func (s *Store) lookup(ns Namespace, key string, obs Observer) (any, bool) {
	if !ns.valid() {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	space := s.spaces[ns]
	e, ok := space[key]
	if !ok {
		if obs != nil {
			obs.Miss(ns)
		}
		return nil, false
	}
	if s.now().Sub(e.written) > s.ttl {
		delete(space, key)
		if obs != nil {
			obs.Expired(ns)
			obs.Miss(ns)
		}
		return nil, false
	}
	if obs != nil {
		obs.Hit(ns)
	}
	return e.value, true
}

// Put stores value under key in ns, replacing any previous value and
// resetting its timestamp.
func (s *Store) Put(ns Namespace, key string, value any) {
	if !ns.valid() {
		return
	}
	s.mu.Lock()
	s.spaces[ns][key] = entry{value: value, written: s.now()}
	s.mu.Unlock()
}

// generation returns the number of times ns has been cleared.
func (s *Store) generation(ns Namespace) uint64 {
	if !ns.valid() {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[ns]
}

// putIfGeneration is Put that does nothing once ns has been cleared since
// gen was read. It reports whether the value was stored.
func (s *Store) putIfGeneration(ns Namespace, key string, value any, gen uint64) bool {
	if !ns.valid() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[ns] != gen {
		return false
	}
	s.spaces[ns][key] = entry{value: value, written: s.now()}
	return true
}

// Delete removes a single key from ns.
func (s *Store) Delete(ns Namespace, key string) {
	if !ns.valid() {
		return
	}
	s.mu.Lock()
	delete(s.spaces[ns], key)
	s.mu.Unlock()
}

// Clear drops every entry of ns. Other namespaces are untouched. Loads
// started through a Typed view before the Clear do not store their result.
func (s *Store) Clear(ns Namespace) {
	if !ns.valid() {
		return
	}
	s.mu.Lock()
	clear(s.spaces[ns])
	s.gens[ns]++
	s.mu.Unlock()
}

// Purge drops every entry of every namespace.
func (s *Store) Purge() {
	s.mu.Lock()
	for i, space := range s.spaces {
		clear(space)
		s.gens[i]++
	}
	s.mu.Unlock()
}

// Len reports the number of resident entries in ns, including expired
// entries that have not been read since they expired.
func (s *Store) Len(ns Namespace) int {
	if !ns.valid() {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spaces[ns])
}

// Stats returns the resident entry count of every namespace.
func (s *Store) Stats() map[Namespace]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Namespace]int, numNamespaces)
	for i, space := range s.spaces {
		out[Namespace(i)] = len(space)
	}
	return out
}
