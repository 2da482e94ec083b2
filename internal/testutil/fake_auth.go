package testutil

import (
	"context"
	"net/http"

	kycgate "github.com/eugener/kycgate/internal"
)

// FakeAuth authenticates every request with the given role's permissions.
// The zero value authenticates as admin.
type FakeAuth struct {
	Role string
}

// Authenticate returns a test identity.
func (a FakeAuth) Authenticate(_ context.Context, _ *http.Request) (*kycgate.Identity, error) {
	role := a.Role
	if role == "" {
		role = "admin"
	}
	return &kycgate.Identity{
		Subject: "kyc_test",
		KeyID:   "test-key",
		Role:    role,
		Perms:   kycgate.RolePermissions[role],
	}, nil
}

// RejectAuth always rejects authentication.
type RejectAuth struct{}

// Authenticate always returns ErrUnauthorized.
func (RejectAuth) Authenticate(context.Context, *http.Request) (*kycgate.Identity, error) {
	return nil, kycgate.ErrUnauthorized
}
