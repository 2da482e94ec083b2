// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/ttlcache"
)

// Config is the top-level kycgate configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Chain     ChainConfig     `yaml:"chain"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Keys      []KeyEntry      `yaml:"keys"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimitRPM    int64         `yaml:"rate_limit_rpm"` // per client IP on /v1; 0 = unlimited
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SlogLevel parses Level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// DatabaseConfig selects and locates the store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`    // file path for sqlite, URL for postgres
}

// CacheConfig holds the TTL cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// InvalidateOnBlock lists namespaces cleared when the chain head
	// advances. Nil keeps the default set; an empty list disables it.
	InvalidateOnBlock []ttlcache.Namespace `yaml:"invalidate_on_block"`
}

// ChainConfig describes the JSON-RPC node and contracts.
type ChainConfig struct {
	Endpoint     string         `yaml:"endpoint"`
	KYCRegistry  string         `yaml:"kyc_registry"`
	TrustScore   string         `yaml:"trust_score"`
	Timeout      time.Duration  `yaml:"timeout"`
	PollInterval time.Duration  `yaml:"poll_interval"` // 0 disables the block watcher
	BearerToken  string         `yaml:"bearer_token"`
	APIKeyHeader string         `yaml:"api_key_header"` // send bearer_token raw under this header
	OAuth2       *OAuth2Entry   `yaml:"oauth2"`
	AWS          *AWSEntry      `yaml:"aws"`
	Google       *GoogleEntry   `yaml:"google"`
	DNSCache     DNSCacheConfig `yaml:"dns_cache"`
	Breaker      BreakerConfig  `yaml:"breaker"`
}

// AWSEntry enables SigV4 signing for AWS Managed Blockchain Access.
// Credentials come from the default AWS chain.
type AWSEntry struct {
	Region string `yaml:"region"`
}

// GoogleEntry enables Application Default Credentials for nodes behind
// Google Cloud IAM.
type GoogleEntry struct {
	Scopes []string `yaml:"scopes"`
}

// OAuth2Entry configures client-credentials auth against the node provider.
type OAuth2Entry struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// DNSCacheConfig controls the node host DNS cache.
type DNSCacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Refresh time.Duration `yaml:"refresh"`
}

// BreakerConfig holds per-method circuit breaker parameters.
type BreakerConfig struct {
	ErrorThreshold float64       `yaml:"error_threshold"`
	MinSamples     int           `yaml:"min_samples"`
	WindowSeconds  int           `yaml:"window_seconds"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// KeyEntry is an admin API key seed in the config file.
type KeyEntry struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"` // plaintext, hashed on bootstrap
	Role string `yaml:"role"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Default returns the configuration used for every field the file omits.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "kycgate.db",
		},
		Cache: CacheConfig{
			TTL: ttlcache.DefaultTTL,
		},
		Chain: ChainConfig{
			Timeout:      10 * time.Second,
			PollInterval: 12 * time.Second,
			DNSCache:     DNSCacheConfig{Enabled: true, Refresh: 5 * time.Minute},
			Breaker: BreakerConfig{
				ErrorThreshold: 0.5,
				MinSamples:     5,
				WindowSeconds:  30,
				OpenTimeout:    10 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
			Tracing: TracingConfig{SampleRate: 1},
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.Server.RateLimitRPM < 0 {
		add("server.rate_limit_rpm must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		add("log.level: %v", err)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		add("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		add("database.dsn is required")
	}

	if c.Cache.TTL <= 0 {
		add("cache.ttl must be positive")
	}

	if c.Chain.Endpoint == "" {
		add("chain.endpoint is required")
	}
	for _, f := range []struct{ name, v string }{
		{"chain.kyc_registry", c.Chain.KYCRegistry},
		{"chain.trust_score", c.Chain.TrustScore},
	} {
		if f.v == "" {
			continue
		}
		if _, err := kycgate.ParseAddress(f.v); err != nil {
			add("%s: %v", f.name, err)
		}
	}
	if c.Chain.Timeout <= 0 {
		add("chain.timeout must be positive")
	}
	if c.Chain.PollInterval < 0 {
		add("chain.poll_interval must not be negative")
	}
	if o := c.Chain.OAuth2; o != nil && (o.TokenURL == "" || o.ClientID == "") {
		add("chain.oauth2 requires token_url and client_id")
	}
	if a := c.Chain.AWS; a != nil && a.Region == "" {
		add("chain.aws requires region")
	}
	if c.Chain.APIKeyHeader != "" && c.Chain.BearerToken == "" {
		add("chain.api_key_header requires bearer_token")
	}
	if c.Chain.authModes() > 1 {
		add("chain: bearer_token, oauth2, aws and google are mutually exclusive")
	}
	if b := c.Chain.Breaker; b.ErrorThreshold <= 0 || b.ErrorThreshold > 1 {
		add("chain.breaker.error_threshold must be in (0, 1]")
	}
	if w := c.Chain.Breaker.WindowSeconds; w < 1 || w > 60 {
		add("chain.breaker.window_seconds must be between 1 and 60")
	}

	if t := c.Telemetry.Tracing; t.Enabled && t.Endpoint == "" {
		add("telemetry.tracing.endpoint is required when tracing is enabled")
	}
	if r := c.Telemetry.Tracing.SampleRate; r < 0 || r > 1 {
		add("telemetry.tracing.sample_rate must be between 0 and 1")
	}

	for i, k := range c.Keys {
		if k.Key == "" {
			continue
		}
		if !strings.HasPrefix(k.Key, kycgate.APIKeyPrefix) {
			add("keys[%d]: key must start with %s", i, kycgate.APIKeyPrefix)
		}
		if k.Role != "" {
			if _, ok := kycgate.RolePermissions[k.Role]; !ok {
				add("keys[%d]: unknown role %q", i, k.Role)
			}
		}
	}
	return errors.Join(errs...)
}

func (c ChainConfig) authModes() int {
	n := 0
	for _, set := range []bool{c.BearerToken != "", c.OAuth2 != nil, c.AWS != nil, c.Google != nil} {
		if set {
			n++
		}
	}
	return n
}
