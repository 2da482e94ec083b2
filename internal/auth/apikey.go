// Package auth authenticates kycgate admin callers by API key. Resolved keys
// are cached in a W-TinyLFU cache so repeated calls skip the store.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/storage"
)

const (
	cacheTTL     = 30 * time.Second // bounds how long a revoked key keeps working
	cacheMaxLen  = 1_000            // admin keys are few
	touchTimeout = 5 * time.Second
)

// APIKeyAuth authenticates "Bearer kyc_..." credentials.
type APIKeyAuth struct {
	store storage.APIKeyStore
	cache *otter.Cache[string, *kycgate.APIKey]
	now   func() time.Time
}

// NewAPIKeyAuth returns an APIKeyAuth backed by store.
func NewAPIKeyAuth(store storage.APIKeyStore) (*APIKeyAuth, error) {
	c, err := otter.New(&otter.Options[string, *kycgate.APIKey]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, *kycgate.APIKey](cacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create auth cache: %w", err)
	}
	return &APIKeyAuth{store: store, cache: c, now: time.Now}, nil
}

// Authenticate resolves the Bearer key on r to an Identity. Missing,
// malformed and unknown keys yield ErrUnauthorized; blocked and expired keys
// yield ErrKeyBlocked and ErrKeyExpired.
func (a *APIKeyAuth) Authenticate(ctx context.Context, r *http.Request) (*kycgate.Identity, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || !strings.HasPrefix(raw, kycgate.APIKeyPrefix) {
		return nil, kycgate.ErrUnauthorized
	}
	hash := kycgate.HashKey(raw)

	if key, ok := a.cache.GetIfPresent(hash); ok {
		if err := a.check(key); err != nil {
			a.cache.Invalidate(hash)
			return nil, err
		}
		return buildIdentity(key), nil
	}

	key, err := a.store.GetKeyByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, kycgate.ErrNotFound) {
			return nil, kycgate.ErrUnauthorized
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, kycgate.ErrUnauthorized
	}
	if err := a.check(key); err != nil {
		return nil, err
	}

	a.cache.Set(hash, key)

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
		defer cancel()
		if err := a.store.TouchKeyUsed(ctx, key.ID); err != nil {
			slog.LogAttrs(ctx, slog.LevelWarn, "touch api key failed",
				slog.String("key_id", key.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	return buildIdentity(key), nil
}

func (a *APIKeyAuth) check(key *kycgate.APIKey) error {
	if key.Blocked {
		return kycgate.ErrKeyBlocked
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(a.now()) {
		return kycgate.ErrKeyExpired
	}
	return nil
}

// buildIdentity constructs an Identity from a validated API key. Unknown
// roles get no permissions.
func buildIdentity(key *kycgate.APIKey) *kycgate.Identity {
	role := key.Role
	if role == "" {
		role = "viewer"
	}
	return &kycgate.Identity{
		Subject: key.KeyPrefix,
		KeyID:   key.ID,
		Role:    role,
		Perms:   kycgate.RolePermissions[role],
	}
}
