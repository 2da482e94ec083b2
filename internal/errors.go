package kycgate

import "errors"

// Sentinel errors for the kycgate domain.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrUpstream     = errors.New("upstream error")
	ErrUnavailable  = errors.New("upstream unavailable")
	ErrKeyExpired   = errors.New("api key expired")
	ErrKeyBlocked   = errors.New("api key blocked")
)
