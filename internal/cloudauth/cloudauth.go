// Package cloudauth authenticates JSON-RPC requests to hosted chain nodes.
// Every transport decorates a base http.RoundTripper and leaves the caller's
// request untouched.
package cloudauth

import "net/http"

// HeaderTransport sets one static credential header on every request.
// Providers disagree on the header: most take "Authorization: Bearer <key>",
// some want x-api-key or a vendor header with the raw key.
type HeaderTransport struct {
	Header string
	Value  string
	Base   http.RoundTripper
}

// Bearer returns a HeaderTransport sending "Authorization: Bearer token".
func Bearer(token string, base http.RoundTripper) *HeaderTransport {
	return &HeaderTransport{Header: "Authorization", Value: "Bearer " + token, Base: base}
}

// RoundTrip clones r and sets the credential header.
func (t *HeaderTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r2 := r.Clone(r.Context())
	r2.Header.Set(t.Header, t.Value)
	return orDefault(t.Base).RoundTrip(r2)
}

func orDefault(rt http.RoundTripper) http.RoundTripper {
	if rt != nil {
		return rt
	}
	return http.DefaultTransport
}
