package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eugener/kycgate/internal/telemetry"
	"github.com/eugener/kycgate/internal/ttlcache"
)

const (
	accountRoutePrefix = "/v1/accounts/{address}/"
	noNamespace        = "none"
)

// statusText maps HTTP status codes to pre-allocated strings,
// avoiding a strconv.Itoa allocation per request.
var statusText [600]string

func init() {
	for i := range statusText {
		statusText[i] = strconv.Itoa(i)
	}
}

// metricsMiddleware records request duration and status per route and cache
// namespace, plus the number of requests in flight.
func metricsMiddleware(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.ActiveRequests.Inc()
			start := time.Now()

			sw := statusWriterPool.Get().(*statusWriter)
			sw.ResponseWriter = w
			sw.status = http.StatusOK
			sw.wroteHeader = false

			next.ServeHTTP(sw, r)

			elapsed := time.Since(start).Seconds()
			status := sw.status
			sw.ResponseWriter = nil
			statusWriterPool.Put(sw)

			m.ActiveRequests.Dec()

			pattern := routePattern(r)
			ns := routeNamespace(r, pattern)

			m.RequestsTotal.WithLabelValues(r.Method, pattern, ns, statusText[status]).Inc()
			m.RequestDuration.WithLabelValues(r.Method, pattern, ns).Observe(elapsed)
		})
	}
}

// routePattern returns the chi route pattern so account addresses never
// become label values. Unmatched paths share one label.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unmatched"
}

// routeNamespace names the cache namespace a request reads or clears. Account
// reads end in the namespace name; admin clears carry it as a URL parameter.
// Unknown names collapse to "none" so clients cannot mint label values.
func routeNamespace(r *http.Request, pattern string) string {
	name, ok := strings.CutPrefix(pattern, accountRoutePrefix)
	if !ok {
		name = chi.URLParam(r, "namespace")
	}
	if ns, ok := ttlcache.ParseNamespace(name); ok {
		return ns.String()
	}
	return noNamespace
}
