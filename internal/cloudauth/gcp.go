package cloudauth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultGoogleScope is requested when no scopes are configured.
const DefaultGoogleScope = "https://www.googleapis.com/auth/cloud-platform"

// GoogleTransport adds a Google OAuth2 access token from Application Default
// Credentials, for nodes behind Google Cloud IAM. Tokens are cached until
// shortly before expiry.
type GoogleTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

// NewGoogleTransport looks up Application Default Credentials for scopes.
func NewGoogleTransport(ctx context.Context, base http.RoundTripper, scopes ...string) (*GoogleTransport, error) {
	if len(scopes) == 0 {
		scopes = []string{DefaultGoogleScope}
	}
	creds, err := google.FindDefaultCredentials(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("cloudauth: find Google credentials: %w", err)
	}
	return newGoogleTransport(base, creds.TokenSource), nil
}

func newGoogleTransport(base http.RoundTripper, ts oauth2.TokenSource) *GoogleTransport {
	return &GoogleTransport{base: base, source: oauth2.ReuseTokenSource(nil, ts)}
}

// RoundTrip sets the bearer token on a clone of r.
func (t *GoogleTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	tok, err := t.source.Token()
	if err != nil {
		return nil, fmt.Errorf("cloudauth: obtain Google token: %w", err)
	}
	r2 := r.Clone(r.Context())
	tok.SetAuthHeader(r2)
	return orDefault(t.base).RoundTrip(r2)
}
