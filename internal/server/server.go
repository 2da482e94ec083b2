// Package server implements the HTTP transport layer for kycgate.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/app"
	"github.com/eugener/kycgate/internal/ratelimit"
	"github.com/eugener/kycgate/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Auth           kycgate.Authenticator
	Accounts       *app.AccountService
	Loans          *app.LoanService
	Cache          *app.CacheAdmin
	Keys           *app.KeyManager
	RateLimiter    *ratelimit.Limiter // nil = no rate limiting on /v1
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	Metrics        *telemetry.Metrics // nil = no request metrics
	MetricsHandler http.Handler       // nil = /metrics not mounted
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	r.Use(s.logging)

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Public read API, served through the cache
	r.Route("/v1/accounts/{address}", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(s.rateLimit)
		}
		r.Use(s.parseAddress)
		r.Get("/trust-score", s.handleTrustScore)
		r.Get("/kyc-status", s.handleKYCStatus)
		r.Get("/loans", s.handleLoans)
		r.Get("/transactions", s.handleTransactions)
	})

	// Admin API (auth required)
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/whoami", s.handleWhoAmI)

		r.With(requirePerm(kycgate.PermReadCache)).Get("/cache", s.handleCacheStats)
		r.With(requirePerm(kycgate.PermClearCache)).Delete("/cache", s.handleCachePurge)
		r.With(requirePerm(kycgate.PermClearCache)).Delete("/cache/{namespace}", s.handleCacheClear)

		r.With(requirePerm(kycgate.PermManageLoans)).Post("/loans", s.handleCreateLoan)
		r.With(requirePerm(kycgate.PermManageLoans)).Patch("/loans/{id}", s.handleTransitionLoan)

		r.With(requirePerm(kycgate.PermIngest)).Post("/transactions", s.handleIngestTransactions)

		r.With(requirePerm(kycgate.PermManageKeys)).Post("/keys", s.handleCreateKey)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse(http.StatusNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse(http.StatusMethodNotAllowed, "method not allowed"))
	})

	return r
}

type server struct {
	deps Deps
}
