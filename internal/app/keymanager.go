package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/storage"
)

// keyPrefixLen is how much of the plaintext is kept for display.
const keyPrefixLen = 12

// KeyManager issues admin API keys.
type KeyManager struct {
	store storage.APIKeyStore
}

// NewKeyManager returns a KeyManager backed by store.
func NewKeyManager(store storage.APIKeyStore) *KeyManager {
	return &KeyManager{store: store}
}

// CreateKeyOpts holds the fields of a new API key.
type CreateKeyOpts struct {
	Name      string
	Role      string
	ExpiresAt *time.Time
}

// CreateKey generates a key, stores its hash and returns the plaintext
// (shown once) with the persisted record.
func (km *KeyManager) CreateKey(ctx context.Context, opts CreateKeyOpts) (string, *kycgate.APIKey, error) {
	role := opts.Role
	if role == "" {
		role = "viewer"
	}
	if _, ok := kycgate.RolePermissions[role]; !ok {
		return "", nil, fmt.Errorf("%w: unknown role %q", kycgate.ErrBadRequest, role)
	}

	plaintext, err := GenerateKey()
	if err != nil {
		return "", nil, err
	}
	key := &kycgate.APIKey{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      opts.Name,
		KeyHash:   kycgate.HashKey(plaintext),
		KeyPrefix: KeyPrefix(plaintext),
		Role:      role,
		ExpiresAt: opts.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := km.store.CreateKey(ctx, key); err != nil {
		return "", nil, err
	}
	return plaintext, key, nil
}

// GenerateKey returns a random plaintext key carrying kycgate.APIKeyPrefix.
func GenerateKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return kycgate.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// KeyPrefix returns the displayable head of a plaintext key.
func KeyPrefix(plaintext string) string {
	if len(plaintext) > keyPrefixLen {
		return plaintext[:keyPrefixLen]
	}
	return plaintext
}
