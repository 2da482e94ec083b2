package circuitbreaker

import (
	"errors"
	"sync"
)

// ErrOpen is returned by Registry.Do when the breaker rejects a call.
var ErrOpen = errors.New("circuit breaker open")

// Registry holds one breaker per key (a chain RPC method name).
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
}

// NewRegistry returns an empty registry creating breakers with cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), cfg: cfg}
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b = NewBreaker(r.cfg)
	r.breakers[key] = b
	return b
}

// States returns a snapshot of every breaker's state.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for k, b := range r.breakers {
		out[k] = b.State()
	}
	return out
}

// Do runs fn through the breaker for key. It returns ErrOpen without
// calling fn when the breaker rejects the call.
func (r *Registry) Do(key string, fn func() error) error {
	b := r.Get(key)
	if !b.Allow() {
		return ErrOpen
	}
	err := fn()
	b.Record(Classify(err))
	return err
}
