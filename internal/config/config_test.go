package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/eugener/kycgate/internal/ttlcache"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  addr: ":9090"
  read_timeout: 10s
log:
  level: debug
  format: json
database:
  driver: postgres
  dsn: postgres://kyc@localhost/kyc
cache:
  ttl: 90s
  invalidate_on_block: [transactions, kyc-status]
chain:
  endpoint: https://rpc.example.org
  kyc_registry: "0x00000000000000000000000000000000000000AA"
  poll_interval: 4s
  oauth2:
    token_url: https://auth.example.org/token
    client_id: kycgate
    client_secret: s3cret
keys:
  - name: ops
    key: kyc_opskey
    role: operator
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" || cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Errorf("unset write_timeout should keep default, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Log.SlogLevel().String() != "DEBUG" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Errorf("ttl = %v", cfg.Cache.TTL)
	}
	if want := []ttlcache.Namespace{ttlcache.Transactions, ttlcache.KYCStatus}; !slices.Equal(cfg.Cache.InvalidateOnBlock, want) {
		t.Errorf("invalidate_on_block = %v, want %v", cfg.Cache.InvalidateOnBlock, want)
	}
	if cfg.Chain.PollInterval != 4*time.Second || cfg.Chain.Timeout != 10*time.Second {
		t.Errorf("chain timings = %v / %v", cfg.Chain.PollInterval, cfg.Chain.Timeout)
	}
	if cfg.Chain.OAuth2 == nil || cfg.Chain.OAuth2.ClientID != "kycgate" {
		t.Errorf("oauth2 = %+v", cfg.Chain.OAuth2)
	}
	if len(cfg.Keys) != 1 || cfg.Keys[0].Role != "operator" {
		t.Errorf("keys = %+v", cfg.Keys)
	}
}

func TestExpandEnv(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv
	t.Setenv("KYCGATE_TEST_RPC", "https://rpc.internal:8545")

	result := expandEnv([]byte("endpoint: ${KYCGATE_TEST_RPC}"))
	if string(result) != "endpoint: https://rpc.internal:8545" {
		t.Errorf("expandEnv = %q", string(result))
	}

	// Unset variables are left in place.
	result = expandEnv([]byte("token: ${KYCGATE_TEST_UNSET}"))
	if string(result) != "token: ${KYCGATE_TEST_UNSET}" {
		t.Errorf("expandEnv unset = %q", string(result))
	}

	cfg, err := Load(writeConfig(t, "chain:\n  endpoint: ${KYCGATE_TEST_RPC}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chain.Endpoint != "https://rpc.internal:8545" {
		t.Errorf("endpoint = %q", cfg.Chain.Endpoint)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "chain:\n  endpoint: http://localhost:8545\n"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "kycgate.db" {
		t.Errorf("default database = %+v", cfg.Database)
	}
	if cfg.Cache.TTL != ttlcache.DefaultTTL {
		t.Errorf("default ttl = %v", cfg.Cache.TTL)
	}
	if cfg.Cache.InvalidateOnBlock != nil {
		t.Errorf("default invalidate_on_block = %v, want nil", cfg.Cache.InvalidateOnBlock)
	}
	if !cfg.Telemetry.Metrics.Enabled || cfg.Telemetry.Tracing.Enabled {
		t.Errorf("default telemetry = %+v", cfg.Telemetry)
	}
	if !cfg.Chain.DNSCache.Enabled {
		t.Error("dns cache should default on")
	}
}

func TestLoadEmptyInvalidateOnBlock(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "chain:\n  endpoint: http://n\ncache:\n  invalidate_on_block: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.InvalidateOnBlock == nil || len(cfg.Cache.InvalidateOnBlock) != 0 {
		t.Errorf("explicit empty list = %#v, want empty non-nil", cfg.Cache.InvalidateOnBlock)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "read config") {
		t.Errorf("missing file err = %v", err)
	}
	if _, err := Load(writeConfig(t, "server: [")); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Errorf("bad yaml err = %v", err)
	}
	if _, err := Load(writeConfig(t, "chain:\n  endpoint: http://n\ncache:\n  invalidate_on_block: [sessions]\n")); err == nil {
		t.Error("unknown namespace should fail to parse")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no endpoint", func(c *Config) { c.Chain.Endpoint = "" }, "chain.endpoint is required"},
		{"negative rpm", func(c *Config) { c.Server.RateLimitRPM = -1 }, "rate_limit_rpm"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"bad registry", func(c *Config) { c.Chain.KYCRegistry = "0x12" }, "chain.kyc_registry"},
		{"oauth2 incomplete", func(c *Config) { c.Chain.OAuth2 = &OAuth2Entry{ClientID: "x"} }, "token_url"},
		{"both auths", func(c *Config) {
			c.Chain.BearerToken = "t"
			c.Chain.OAuth2 = &OAuth2Entry{TokenURL: "u", ClientID: "x"}
		}, "mutually exclusive"},
		{"aws and google", func(c *Config) {
			c.Chain.AWS = &AWSEntry{Region: "us-east-1"}
			c.Chain.Google = &GoogleEntry{}
		}, "mutually exclusive"},
		{"aws no region", func(c *Config) { c.Chain.AWS = &AWSEntry{} }, "chain.aws requires region"},
		{"header without token", func(c *Config) { c.Chain.APIKeyHeader = "x-api-key" }, "api_key_header"},
		{"breaker window", func(c *Config) { c.Chain.Breaker.WindowSeconds = 120 }, "window_seconds"},
		{"tracing no endpoint", func(c *Config) { c.Telemetry.Tracing.Enabled = true }, "tracing.endpoint"},
		{"sample rate", func(c *Config) { c.Telemetry.Tracing.SampleRate = 2 }, "sample_rate"},
		{"key prefix", func(c *Config) { c.Keys = []KeyEntry{{Key: "abc"}} }, "keys[0]"},
		{"key role", func(c *Config) { c.Keys = []KeyEntry{{Key: "kyc_a", Role: "root"}} }, "unknown role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			cfg.Chain.Endpoint = "http://localhost:8545"
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}

	cfg := Default()
	cfg.Chain.Endpoint = "http://localhost:8545"
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults plus endpoint should validate: %v", err)
	}
}

func TestSlogLevelFallback(t *testing.T) {
	t.Parallel()
	if got := (LogConfig{Level: "nope"}).SlogLevel().String(); got != "INFO" {
		t.Errorf("fallback level = %s, want INFO", got)
	}
	if got := (LogConfig{Level: "WARN"}).SlogLevel().String(); got != "WARN" {
		t.Errorf("level = %s, want WARN", got)
	}
}
