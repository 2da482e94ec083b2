// Package circuitbreaker guards upstream chain RPC methods with a
// sliding-window, weighted error-rate breaker.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker parameters.
type Config struct {
	ErrorThreshold float64       // weighted error rate that trips the breaker
	MinSamples     int           // requests in window before it may trip
	WindowSeconds  int           // sliding window length, at most 60
	OpenTimeout    time.Duration // time spent open before a trial request is allowed
	Now            func() time.Time
}

// DefaultConfig returns the defaults used for chain RPC methods.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.5,
		MinSamples:     5,
		WindowSeconds:  30,
		OpenTimeout:    10 * time.Second,
	}
}

// Breaker is a closed -> open -> half-open state machine.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	win      window
	openedAt time.Time
	probing  bool
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg Config) *Breaker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg, win: newWindow(cfg.WindowSeconds)}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. In half-open state exactly one
// trial request is admitted until its outcome is recorded.
func (b *Breaker) Allow() bool {
	now := b.cfg.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Record feeds a call outcome into the breaker. weight 0 means success;
// see Classify for the weights of failures.
func (b *Breaker) Record(weight float64) {
	now := b.cfg.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.win.add(weight, now)

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		if weight == 0 {
			b.state = StateClosed
			b.win.reset()
			return
		}
		b.state = StateOpen
		b.openedAt = now
	case StateClosed:
		if weight == 0 {
			return
		}
		rate, n := b.win.rate(now)
		if n >= b.cfg.MinSamples && rate >= b.cfg.ErrorThreshold {
			b.state = StateOpen
			b.openedAt = now
		}
	}
}
