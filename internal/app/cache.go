package app

import (
	"context"
	"log/slog"
	"slices"
	"time"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/events"
	"github.com/eugener/kycgate/internal/ttlcache"
)

// DefaultBlockNamespaces are cleared whenever the chain head advances.
var DefaultBlockNamespaces = []ttlcache.Namespace{
	ttlcache.Transactions,
	ttlcache.TrustScore,
	ttlcache.KYCStatus,
}

// Invalidator clears cache namespaces in response to emitted events.
type Invalidator struct {
	cache   *ttlcache.Store
	onBlock []ttlcache.Namespace
}

// NewInvalidator returns an Invalidator that clears onBlock on every
// chain.block event. A nil onBlock selects DefaultBlockNamespaces.
func NewInvalidator(cache *ttlcache.Store, onBlock []ttlcache.Namespace) *Invalidator {
	if onBlock == nil {
		onBlock = DefaultBlockNamespaces
	}
	return &Invalidator{cache: cache, onBlock: slices.Clone(onBlock)}
}

// Register subscribes to em. The returned func removes the subscriptions.
func (inv *Invalidator) Register(em *events.Emitter) func() {
	blockID := em.On(events.ChainBlock, inv.handleBlock)
	loanID := em.On(events.LoanChanged, inv.handleLoan)
	return func() {
		em.Off(events.ChainBlock, blockID)
		em.Off(events.LoanChanged, loanID)
	}
}

func (inv *Invalidator) handleBlock(ctx context.Context, payload any) {
	for _, ns := range inv.onBlock {
		inv.cache.Clear(ns)
	}
	attrs := []slog.Attr{slog.Int("namespaces", len(inv.onBlock))}
	if ev, ok := payload.(events.BlockEvent); ok {
		attrs = append(attrs, slog.Uint64("block", ev.Number))
	}
	slog.LogAttrs(ctx, slog.LevelDebug, "cache invalidated on new block", attrs...)
}

func (inv *Invalidator) handleLoan(ctx context.Context, _ any) {
	inv.cache.Clear(ttlcache.Loans)
}

// CacheStats describes the cache for the admin API.
type CacheStats struct {
	TTL        string                     `json:"ttl"`
	Entries    map[ttlcache.Namespace]int `json:"entries"`
	Total      int                        `json:"total"`
	Namespaces []ttlcache.Namespace       `json:"namespaces"`
}

// CacheAdmin exposes cache inspection and manual clearing.
type CacheAdmin struct {
	cache   *ttlcache.Store
	emitter *events.Emitter
}

// NewCacheAdmin returns a CacheAdmin. Clears are announced on emitter as
// events.CacheCleared.
func NewCacheAdmin(cache *ttlcache.Store, emitter *events.Emitter) *CacheAdmin {
	return &CacheAdmin{cache: cache, emitter: emitter}
}

// Stats returns resident entry counts per namespace.
func (a *CacheAdmin) Stats() CacheStats {
	entries := a.cache.Stats()
	total := 0
	for _, n := range entries {
		total += n
	}
	return CacheStats{
		TTL:        a.cache.TTL().Round(time.Millisecond).String(),
		Entries:    entries,
		Total:      total,
		Namespaces: ttlcache.Namespaces(),
	}
}

// Clear drops every entry in ns.
func (a *CacheAdmin) Clear(ctx context.Context, ns ttlcache.Namespace) {
	a.cache.Clear(ns)
	a.audit(ctx, "cache namespace cleared", slog.String("namespace", ns.String()))
	a.emitter.Emit(ctx, events.CacheCleared, events.CacheClearedEvent{Namespace: ns})
}

// Purge drops every entry in every namespace.
func (a *CacheAdmin) Purge(ctx context.Context) {
	a.cache.Purge()
	a.audit(ctx, "cache purged")
	a.emitter.Emit(ctx, events.CacheCleared, events.CacheClearedEvent{All: true})
}

func (a *CacheAdmin) audit(ctx context.Context, msg string, attrs ...slog.Attr) {
	if id := kycgate.IdentityFromContext(ctx); id != nil {
		attrs = append(attrs, slog.String("key_id", id.KeyID))
	}
	attrs = append(attrs, slog.String("request_id", kycgate.RequestIDFromContext(ctx)))
	slog.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}
