package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eugener/kycgate/internal/ttlcache"
)

// CacheObserver feeds ttlcache lookup outcomes into the per-namespace
// counters. Label children are resolved once up front.
type CacheObserver struct {
	hits    []prometheus.Counter
	misses  []prometheus.Counter
	expired []prometheus.Counter
}

// NewCacheObserver returns a ttlcache.Observer backed by m.
func (m *Metrics) NewCacheObserver() *CacheObserver {
	o := &CacheObserver{}
	for _, ns := range ttlcache.Namespaces() {
		name := ns.String()
		o.hits = append(o.hits, m.CacheHits.WithLabelValues(name))
		o.misses = append(o.misses, m.CacheMisses.WithLabelValues(name))
		o.expired = append(o.expired, m.CacheExpired.WithLabelValues(name))
	}
	return o
}

func (o *CacheObserver) Hit(ns ttlcache.Namespace)     { o.inc(o.hits, ns) }
func (o *CacheObserver) Miss(ns ttlcache.Namespace)    { o.inc(o.misses, ns) }
func (o *CacheObserver) Expired(ns ttlcache.Namespace) { o.inc(o.expired, ns) }

func (o *CacheObserver) inc(cs []prometheus.Counter, ns ttlcache.Namespace) {
	if int(ns) < len(cs) {
		cs[ns].Inc()
	}
}

// RegisterCacheEntries exposes kycgate_cache_entries{namespace} as gauge
// functions evaluated at scrape time.
func (m *Metrics) RegisterCacheEntries(store *ttlcache.Store) {
	for _, ns := range ttlcache.Namespaces() {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "kycgate",
			Name:        "cache_entries",
			Help:        "Resident cache entries per namespace, expired ones included.",
			ConstLabels: prometheus.Labels{"namespace": ns.String()},
		}, func() float64 { return float64(store.Len(ns)) }))
	}
}

// ChainObserver records chain RPC outcomes.
type ChainObserver struct{ m *Metrics }

// NewChainObserver returns a chain.Observer backed by m.
func (m *Metrics) NewChainObserver() *ChainObserver { return &ChainObserver{m: m} }

// ObserveCall records latency and, on failure, an error.
func (o *ChainObserver) ObserveCall(method string, d time.Duration, err error) {
	o.m.ChainDuration.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		o.m.ChainErrors.WithLabelValues(method).Inc()
	}
}

// BreakerRejected counts a call short-circuited by an open breaker.
func (o *ChainObserver) BreakerRejected(method string) {
	o.m.BreakerRejects.WithLabelValues(method).Inc()
}
