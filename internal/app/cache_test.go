package app

import (
	"context"
	"testing"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/events"
	"github.com/eugener/kycgate/internal/ttlcache"
)

func fill(c *ttlcache.Store) {
	for _, ns := range ttlcache.Namespaces() {
		c.Put(ns, "a", 1)
		c.Put(ns, "b", 2)
	}
}

func TestInvalidator_Block(t *testing.T) {
	t.Parallel()
	cache := ttlcache.New(ttlcache.Options{})
	em := events.NewEmitter()
	NewInvalidator(cache, nil).Register(em)
	fill(cache)

	em.Emit(context.Background(), events.ChainBlock, events.BlockEvent{Number: 11, Previous: 10})

	for _, ns := range DefaultBlockNamespaces {
		if n := cache.Len(ns); n != 0 {
			t.Errorf("%s entries = %d, want 0", ns, n)
		}
	}
	if n := cache.Len(ttlcache.Loans); n != 2 {
		t.Errorf("loans entries = %d, want 2", n)
	}
}

func TestInvalidator_CustomBlockNamespaces(t *testing.T) {
	t.Parallel()
	cache := ttlcache.New(ttlcache.Options{})
	em := events.NewEmitter()
	NewInvalidator(cache, []ttlcache.Namespace{}).Register(em)
	fill(cache)

	em.Emit(context.Background(), events.ChainBlock, events.BlockEvent{Number: 2})

	if n := cache.Len(ttlcache.TrustScore); n != 2 {
		t.Errorf("empty onBlock should clear nothing, trust-score entries = %d", n)
	}
}

func TestInvalidator_LoanChanged(t *testing.T) {
	t.Parallel()
	cache := ttlcache.New(ttlcache.Options{})
	em := events.NewEmitter()
	NewInvalidator(cache, nil).Register(em)
	fill(cache)

	em.Emit(context.Background(), events.LoanChanged, events.LoanEvent{Loan: &kycgate.Loan{ID: "l1"}})

	if n := cache.Len(ttlcache.Loans); n != 0 {
		t.Errorf("loans entries = %d, want 0", n)
	}
	if n := cache.Len(ttlcache.KYCStatus); n != 2 {
		t.Errorf("kyc entries = %d, want 2", n)
	}
}

func TestInvalidator_Unregister(t *testing.T) {
	t.Parallel()
	cache := ttlcache.New(ttlcache.Options{})
	em := events.NewEmitter()
	stop := NewInvalidator(cache, nil).Register(em)
	stop()
	fill(cache)

	em.Emit(context.Background(), events.ChainBlock, events.BlockEvent{Number: 1})
	em.Emit(context.Background(), events.LoanChanged, events.LoanEvent{})

	if got := cache.Stats(); got[ttlcache.Transactions] != 2 || got[ttlcache.Loans] != 2 {
		t.Errorf("stats after unregister = %v", got)
	}
	if em.ListenerCount(events.ChainBlock) != 0 || em.ListenerCount(events.LoanChanged) != 0 {
		t.Error("listeners should be removed")
	}
}

func TestCacheAdmin(t *testing.T) {
	t.Parallel()
	cache := ttlcache.New(ttlcache.Options{})
	em := events.NewEmitter()
	admin := NewCacheAdmin(cache, em)

	var cleared []events.CacheClearedEvent
	em.On(events.CacheCleared, func(_ context.Context, p any) {
		cleared = append(cleared, p.(events.CacheClearedEvent))
	})

	fill(cache)
	st := admin.Stats()
	if st.Total != 8 || st.Entries[ttlcache.Loans] != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st.TTL != "5m0s" {
		t.Errorf("ttl = %q, want 5m0s", st.TTL)
	}
	if len(st.Namespaces) != 4 {
		t.Errorf("namespaces = %v", st.Namespaces)
	}

	ctx := kycgate.ContextWithIdentity(context.Background(), &kycgate.Identity{KeyID: "k1"})
	admin.Clear(ctx, ttlcache.TrustScore)
	if cache.Len(ttlcache.TrustScore) != 0 || admin.Stats().Total != 6 {
		t.Errorf("after clear: %+v", admin.Stats())
	}

	admin.Purge(ctx)
	if admin.Stats().Total != 0 {
		t.Errorf("after purge: %+v", admin.Stats())
	}

	want := []events.CacheClearedEvent{{Namespace: ttlcache.TrustScore}, {All: true}}
	if len(cleared) != len(want) || cleared[0] != want[0] || cleared[1] != want[1] {
		t.Errorf("events = %+v, want %+v", cleared, want)
	}
}
