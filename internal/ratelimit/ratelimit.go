// Package ratelimit implements per-client requests-per-minute limiting with
// lazy-refill token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// bucket is a token bucket with lazy refill (no background goroutine).
type bucket struct {
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastFill time.Time
	lastUsed time.Time
}

func newBucket(rpm int64, now time.Time) *bucket {
	return &bucket{
		tokens:   float64(rpm),
		max:      float64(rpm),
		rate:     float64(rpm) / 60.0,
		lastFill: now,
		lastUsed: now,
	}
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.max, b.tokens+elapsed*b.rate)
	b.lastFill = now
}

// take consumes one token if available.
func (b *bucket) take(now time.Time) bool {
	b.refill(now)
	b.lastUsed = now
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// retryAfter returns the time until one token is available.
func (b *bucket) retryAfter() time.Duration {
	if b.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

// Limiter holds one bucket per client, all with the same limit.
type Limiter struct {
	rpm int64
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New returns a Limiter allowing rpm requests per minute per client.
// rpm <= 0 disables limiting.
func New(rpm int64) *Limiter {
	return &Limiter{rpm: rpm, now: time.Now, buckets: make(map[string]*bucket)}
}

// Allow consumes one request for client.
func (l *Limiter) Allow(client string) Result {
	if l.rpm <= 0 {
		return Result{Allowed: true}
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[client]
	if !ok {
		b = newBucket(l.rpm, now)
		l.buckets[client] = b
	}
	if b.take(now) {
		return Result{Allowed: true, Limit: l.rpm, Remaining: int64(b.tokens)}
	}
	return Result{Limit: l.rpm, RetryAfter: b.retryAfter()}
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// EvictStale removes clients not seen since cutoff. A client with a full
// bucket behaves the same whether tracked or not, so eviction is lossless
// once a minute has passed.
func (l *Limiter) EvictStale(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for k, b := range l.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(l.buckets, k)
			evicted++
		}
	}
	return evicted
}
