// Package chain is a minimal Ethereum JSON-RPC client for the KYC registry
// and trust-score contracts.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/dnscache"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/circuitbreaker"
)

const (
	defaultTimeout = 10 * time.Second
	maxResponse    = 1 << 20
)

// OAuth2Config configures client-credentials auth against the node provider.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// AWSConfig signs requests for AWS Managed Blockchain Access.
type AWSConfig struct {
	Region string
}

// GoogleConfig authenticates with Google Application Default Credentials.
type GoogleConfig struct {
	Scopes []string
}

// Config describes the node endpoint, its credentials and the contract
// addresses. At most one of BearerToken, OAuth2, AWS and Google is set.
type Config struct {
	Endpoint    string
	KYCRegistry kycgate.Address
	TrustScore  kycgate.Address
	Timeout     time.Duration

	// BearerToken is sent as "Authorization: Bearer <token>", or raw under
	// APIKeyHeader when that is set.
	BearerToken  string
	APIKeyHeader string
	OAuth2       *OAuth2Config
	AWS          *AWSConfig
	Google       *GoogleConfig
}

// Observer receives per-call outcomes. Optional.
type Observer interface {
	ObserveCall(method string, d time.Duration, err error)
	BreakerRejected(method string)
}

// Client calls the chain node.
type Client struct {
	cfg      Config
	http     *http.Client
	breakers *circuitbreaker.Registry
	obs      Observer
	tracer   trace.Tracer
	nextID   atomic.Uint64
}

// Option customizes a Client.
type Option func(*Client)

// WithResolver routes dials through a DNS cache.
func WithResolver(r *dnscache.Resolver) Option {
	return func(c *Client) {
		c.http.Transport = newTransport(r)
	}
}

// WithBreakers guards every RPC method with a circuit breaker.
func WithBreakers(r *circuitbreaker.Registry) Option {
	return func(c *Client) { c.breakers = r }
}

// WithObserver reports call outcomes to obs.
func WithObserver(obs Observer) Option {
	return func(c *Client) { c.obs = obs }
}

// WithHTTPClient replaces the HTTP client (used in tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a Client for cfg.Endpoint. Auth from cfg is layered on top of
// whichever transport the options leave in place.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("chain: endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Transport: newTransport(nil)},
		tracer: otel.Tracer("github.com/eugener/kycgate/internal/chain"),
	}
	for _, o := range opts {
		o(c)
	}
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	rt, err := authTransport(ctx, cfg, base)
	if err != nil {
		return nil, fmt.Errorf("chain: %w", err)
	}
	c.http = &http.Client{Transport: rt, Timeout: cfg.Timeout}
	return c, nil
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	res, err := c.call(ctx, "eth_blockNumber", []any{})
	if err != nil {
		return 0, err
	}
	return parseQuantity(res.String())
}

// TrustScore returns the trust score of addr.
func (c *Client) TrustScore(ctx context.Context, addr kycgate.Address) (uint64, error) {
	out, err := c.ethCall(ctx, c.cfg.TrustScore, encodeAddressCall(selTrustScore, addr))
	if err != nil {
		return 0, err
	}
	return decodeUint64(out)
}

// KYCStatus returns the registry status of addr.
func (c *Client) KYCStatus(ctx context.Context, addr kycgate.Address) (kycgate.KYCStatus, error) {
	out, err := c.ethCall(ctx, c.cfg.KYCRegistry, encodeAddressCall(selKYCStatus, addr))
	if err != nil {
		return 0, err
	}
	n, err := decodeUint64(out)
	if err != nil {
		return 0, err
	}
	s := kycgate.KYCStatus(n)
	if n > 255 || !s.Valid() {
		return 0, fmt.Errorf("chain: unknown kyc status %d: %w", n, kycgate.ErrUpstream)
	}
	return s, nil
}

func (c *Client) ethCall(ctx context.Context, to kycgate.Address, data string) (string, error) {
	if to == "" {
		return "", errors.New("chain: contract address not configured")
	}
	params := []any{
		map[string]string{"to": to.String(), "data": data},
		"latest",
	}
	res, err := c.call(ctx, "eth_call", params)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// call performs one JSON-RPC round trip and returns the "result" member.
func (c *Client) call(ctx context.Context, method string, params []any) (gjson.Result, error) {
	ctx, span := c.tracer.Start(ctx, "chain."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)),
	)
	defer span.End()

	var res gjson.Result
	do := func() error {
		var err error
		res, err = c.roundTrip(ctx, method, params)
		return err
	}

	start := time.Now()
	var err error
	if c.breakers != nil {
		err = c.breakers.Do(method, do)
	} else {
		err = do()
	}

	if errors.Is(err, circuitbreaker.ErrOpen) {
		if c.obs != nil {
			c.obs.BreakerRejected(method)
		}
		err = fmt.Errorf("chain: %s: %w: %w", method, kycgate.ErrUnavailable, err)
	} else if c.obs != nil {
		c.obs.ObserveCall(method, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return gjson.Result{}, err
	}
	return res, nil
}

func (c *Client) roundTrip(ctx context.Context, method string, params []any) (gjson.Result, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("chain: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("chain: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// A caller that went away is not a node failure.
		if ctx.Err() != nil {
			return gjson.Result{}, fmt.Errorf("chain: %s: %w", method, err)
		}
		return gjson.Result{}, fmt.Errorf("chain: %s: %w: %w", method, kycgate.ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		if ctx.Err() != nil {
			return gjson.Result{}, fmt.Errorf("chain: %s: read response: %w", method, err)
		}
		return gjson.Result{}, fmt.Errorf("chain: %s: read response: %w: %w", method, kycgate.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, &HTTPError{Method: method, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("chain: %s: invalid JSON response: %w", method, kycgate.ErrUpstream)
	}

	if e := gjson.GetBytes(data, "error"); e.Exists() && e.Type != gjson.Null {
		return gjson.Result{}, &RPCError{
			Method:  method,
			Code:    int(e.Get("code").Int()),
			Message: e.Get("message").String(),
			Data:    e.Get("data").String(),
		}
	}
	res := gjson.GetBytes(data, "result")
	if !res.Exists() {
		return gjson.Result{}, fmt.Errorf("chain: %s: response has no result: %w", method, kycgate.ErrUpstream)
	}
	return res, nil
}
