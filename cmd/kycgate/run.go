package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/app"
	"github.com/eugener/kycgate/internal/auth"
	"github.com/eugener/kycgate/internal/chain"
	"github.com/eugener/kycgate/internal/circuitbreaker"
	"github.com/eugener/kycgate/internal/config"
	"github.com/eugener/kycgate/internal/events"
	"github.com/eugener/kycgate/internal/ratelimit"
	"github.com/eugener/kycgate/internal/server"
	"github.com/eugener/kycgate/internal/storage"
	"github.com/eugener/kycgate/internal/storage/postgres"
	"github.com/eugener/kycgate/internal/storage/sqlite"
	"github.com/eugener/kycgate/internal/telemetry"
	"github.com/eugener/kycgate/internal/ttlcache"
	"github.com/eugener/kycgate/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	slog.Info("starting kycgate", "version", version, "addr", cfg.Server.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	// Open database
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	// Bootstrap from config
	if err := config.Bootstrap(ctx, cfg, store); err != nil {
		return err
	}

	// Metrics
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
		cacheOpts      = ttlcache.Options{TTL: cfg.Cache.TTL}
		chainOpts      []chain.Option
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		cacheOpts.Observer = metrics.NewCacheObserver()
		chainOpts = append(chainOpts, chain.WithObserver(metrics.NewChainObserver()))
	}

	cache := ttlcache.New(cacheOpts)
	if metrics != nil {
		metrics.RegisterCacheEntries(cache)
	}

	// Chain client
	var workers []worker.Worker
	if cfg.Chain.DNSCache.Enabled {
		resolver := &dnscache.Resolver{}
		chainOpts = append(chainOpts, chain.WithResolver(resolver))
		workers = append(workers, worker.NewDNSRefresher(resolver, cfg.Chain.DNSCache.Refresh))
	}
	b := cfg.Chain.Breaker
	chainOpts = append(chainOpts, chain.WithBreakers(circuitbreaker.NewRegistry(circuitbreaker.Config{
		ErrorThreshold: b.ErrorThreshold,
		MinSamples:     b.MinSamples,
		WindowSeconds:  b.WindowSeconds,
		OpenTimeout:    b.OpenTimeout,
	})))
	chainCfg, err := chainConfig(cfg.Chain)
	if err != nil {
		return err
	}
	client, err := chain.New(ctx, chainCfg, chainOpts...)
	if err != nil {
		return err
	}

	// Wire services
	emitter := events.NewEmitter()
	app.NewInvalidator(cache, cfg.Cache.InvalidateOnBlock).Register(emitter)

	accounts := app.NewAccountService(client, store, cache)
	loans := app.NewLoanService(store, accounts, emitter)

	apiKeyAuth, err := auth.NewAPIKeyAuth(store)
	if err != nil {
		return err
	}

	if cfg.Chain.PollInterval > 0 {
		var head worker.HeadGauge
		if metrics != nil {
			head = metrics.ChainHeadBlock
		}
		workers = append(workers, worker.NewBlockWatcher(client, emitter, cfg.Chain.PollInterval, head))
	}

	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimitRPM > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimitRPM)
		workers = append(workers, worker.NewEvictor("rate_limiter", limiter, 0, 0))
	}

	// Create HTTP server
	handler := server.New(server.Deps{
		Auth:           apiKeyAuth,
		Accounts:       accounts,
		Loans:          loans,
		Cache:          app.NewCacheAdmin(cache, emitter),
		Keys:           app.NewKeyManager(store),
		RateLimiter:    limiter,
		ReadyCheck:     store.Ping,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background workers
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	workerErr := make(chan error, 1)
	go func() {
		if err := worker.NewRunner(workers...).Run(workerCtx); err != nil {
			workerErr <- err
		}
	}()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("kycgate ready", "addr", cfg.Server.Addr)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down", "reason", context.Cause(ctx))
	case err := <-errCh:
		return err
	case err := <-workerErr:
		runErr = fmt.Errorf("worker: %w", err)
		slog.Error("worker failed, shutting down", "error", err)
	}

	// Shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	cancelWorkers()

	slog.Info("kycgate stopped")
	return runErr
}

func setupLogging(lc config.LogConfig) {
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	var h slog.Handler
	if strings.EqualFold(lc.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func openStore(ctx context.Context, db config.DatabaseConfig) (storage.Store, error) {
	switch db.Driver {
	case "postgres":
		return postgres.New(ctx, db.DSN)
	default:
		return sqlite.New(ctx, db.DSN)
	}
}

func chainConfig(c config.ChainConfig) (chain.Config, error) {
	out := chain.Config{
		Endpoint:     c.Endpoint,
		Timeout:      c.Timeout,
		BearerToken:  c.BearerToken,
		APIKeyHeader: c.APIKeyHeader,
	}
	var err error
	if c.KYCRegistry != "" {
		if out.KYCRegistry, err = kycgate.ParseAddress(c.KYCRegistry); err != nil {
			return out, fmt.Errorf("chain.kyc_registry: %w", err)
		}
	}
	if c.TrustScore != "" {
		if out.TrustScore, err = kycgate.ParseAddress(c.TrustScore); err != nil {
			return out, fmt.Errorf("chain.trust_score: %w", err)
		}
	}
	if o := c.OAuth2; o != nil {
		out.OAuth2 = &chain.OAuth2Config{
			TokenURL:     o.TokenURL,
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			Scopes:       o.Scopes,
		}
	}
	if a := c.AWS; a != nil {
		out.AWS = &chain.AWSConfig{Region: a.Region}
	}
	if g := c.Google; g != nil {
		out.Google = &chain.GoogleConfig{Scopes: g.Scopes}
	}
	return out, nil
}
