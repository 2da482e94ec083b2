package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(rpm int64) (*Limiter, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(rpm)
	l.now = c.now
	return l, c
}

func near(got, want time.Duration) bool {
	d := got - want
	return d > -time.Millisecond && d < time.Millisecond
}

func TestLimiter_Allow(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(3)

	for i := range 3 {
		r := l.Allow("10.0.0.1")
		if !r.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if want := int64(2 - i); r.Remaining != want {
			t.Errorf("request %d remaining = %d, want %d", i+1, r.Remaining, want)
		}
		if r.Limit != 3 {
			t.Errorf("limit = %d", r.Limit)
		}
	}

	r := l.Allow("10.0.0.1")
	if r.Allowed {
		t.Fatal("4th request should be denied")
	}
	// 3 rpm refills one token every 20s.
	if !near(r.RetryAfter, 20*time.Second) {
		t.Errorf("RetryAfter = %v, want 20s", r.RetryAfter)
	}
}

func TestLimiter_Refill(t *testing.T) {
	t.Parallel()
	l, c := newTestLimiter(1)

	if !l.Allow("a").Allowed {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("a").Allowed {
		t.Fatal("second request should be denied")
	}
	c.advance(30 * time.Second)
	if r := l.Allow("a"); r.Allowed || !near(r.RetryAfter, 30*time.Second) {
		t.Errorf("half refilled = %+v, want denied with 30s", r)
	}
	c.advance(31 * time.Second)
	if !l.Allow("a").Allowed {
		t.Error("request should be allowed after a full minute")
	}
}

func TestLimiter_ClientsIndependent(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(1)

	l.Allow("a")
	if l.Allow("a").Allowed {
		t.Error("a should be exhausted")
	}
	if !l.Allow("b").Allowed {
		t.Error("b has its own bucket")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(0)

	for range 1000 {
		if !l.Allow("a").Allowed {
			t.Fatal("rpm 0 should never deny")
		}
	}
	if l.Len() != 0 {
		t.Errorf("unlimited limiter tracked %d clients", l.Len())
	}
}

func TestLimiter_EvictStale(t *testing.T) {
	t.Parallel()
	l, c := newTestLimiter(10)

	l.Allow("old")
	c.advance(5 * time.Minute)
	l.Allow("fresh")

	if n := l.EvictStale(c.now().Add(-time.Minute)); n != 1 {
		t.Errorf("evicted = %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("len = %d, want 1", l.Len())
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(100)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := range 200 {
		wg.Go(func() {
			if l.Allow(fmt.Sprint(i % 2)).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	if allowed != 200 {
		t.Errorf("allowed = %d, want 200 (two clients of 100)", allowed)
	}
}
