package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/testutil"
)

func TestCreateKey(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	km := NewKeyManager(store)

	plaintext, key, err := km.CreateKey(context.Background(), CreateKeyOpts{Name: "ops"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(plaintext, kycgate.APIKeyPrefix) {
		t.Errorf("plaintext should have %s prefix, got %q", kycgate.APIKeyPrefix, plaintext)
	}
	if key.KeyHash != kycgate.HashKey(plaintext) {
		t.Error("key hash should match HashKey(plaintext)")
	}
	if key.KeyPrefix != plaintext[:keyPrefixLen] {
		t.Errorf("prefix = %q, want %q", key.KeyPrefix, plaintext[:keyPrefixLen])
	}
	if key.Role != "viewer" {
		t.Errorf("default role = %q, want viewer", key.Role)
	}
	if key.Name != "ops" || key.ID == "" {
		t.Errorf("key = %+v", key)
	}

	stored, err := store.GetKeyByHash(context.Background(), key.KeyHash)
	if err != nil {
		t.Fatalf("stored key: %v", err)
	}
	if stored.ID != key.ID {
		t.Errorf("stored id = %q, want %q", stored.ID, key.ID)
	}
}

func TestCreateKey_WithRoleAndExpiry(t *testing.T) {
	t.Parallel()

	km := NewKeyManager(testutil.NewFakeStore())
	exp := time.Now().Add(time.Hour).UTC()
	_, key, err := km.CreateKey(context.Background(), CreateKeyOpts{Role: "operator", ExpiresAt: &exp})
	if err != nil {
		t.Fatal(err)
	}
	if key.Role != "operator" {
		t.Errorf("role = %q, want operator", key.Role)
	}
	if key.ExpiresAt == nil || !key.ExpiresAt.Equal(exp) {
		t.Errorf("expires_at = %v, want %v", key.ExpiresAt, exp)
	}
}

func TestCreateKey_UnknownRole(t *testing.T) {
	t.Parallel()

	km := NewKeyManager(testutil.NewFakeStore())
	_, _, err := km.CreateKey(context.Background(), CreateKeyOpts{Role: "root"})
	if !errors.Is(err, kycgate.ErrBadRequest) {
		t.Errorf("err = %v, want ErrBadRequest", err)
	}
}

func TestCreateKey_StoreError(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	store.Err = errors.New("disk full")
	km := NewKeyManager(store)

	if _, _, err := km.CreateKey(context.Background(), CreateKeyOpts{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestGenerateKey_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 50 {
		k, err := GenerateKey()
		if err != nil {
			t.Fatal(err)
		}
		if seen[k] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[k] = true
	}
}

func TestKeyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"kyc_abcdefghijklmnop", "kyc_abcdefgh"},
		{"kyc_short", "kyc_short"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := KeyPrefix(tt.in); got != tt.want {
			t.Errorf("KeyPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
