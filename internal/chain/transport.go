package chain

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/eugener/kycgate/internal/cloudauth"
)

// newTransport returns a pooled transport for a single RPC endpoint. When
// resolver is non-nil, dials go through its cached lookups.
func newTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 32,
		MaxConnsPerHost:     64,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}

// authTransport wraps base with the credentials configured for the node.
// OAuth2 client credentials win over the other modes.
func authTransport(ctx context.Context, cfg Config, base http.RoundTripper) (http.RoundTripper, error) {
	switch {
	case cfg.OAuth2 != nil && cfg.OAuth2.TokenURL != "":
		o := cfg.OAuth2
		cc := &clientcredentials.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			TokenURL:     o.TokenURL,
			Scopes:       o.Scopes,
		}
		// Token fetches use a client on the same base transport.
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base, Timeout: cfg.Timeout})
		return &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, cc.TokenSource(ctx)),
			Base:   base,
		}, nil
	case cfg.AWS != nil:
		return cloudauth.NewManagedBlockchainTransport(ctx, base, cfg.AWS.Region)
	case cfg.Google != nil:
		return cloudauth.NewGoogleTransport(ctx, base, cfg.Google.Scopes...)
	case cfg.BearerToken != "" && cfg.APIKeyHeader != "":
		return &cloudauth.HeaderTransport{Header: cfg.APIKeyHeader, Value: cfg.BearerToken, Base: base}, nil
	case cfg.BearerToken != "":
		return cloudauth.Bearer(cfg.BearerToken, base), nil
	}
	return base, nil
}
