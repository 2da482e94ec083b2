package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	kycgate "github.com/eugener/kycgate/internal"
)

// CreateKey inserts a new admin API key.
func (s *Store) CreateKey(ctx context.Context, key *kycgate.APIKey) error {
	role := key.Role
	if role == "" {
		role = "viewer"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, role, expires_at, blocked, last_used_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, role,
		utcPtr(key.ExpiresAt), key.Blocked, utcPtr(key.LastUsedAt), key.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("api key %s: %w", key.KeyPrefix, kycgate.ErrConflict)
	}
	return err
}

// GetKeyByHash retrieves an API key by its SHA-256 hash.
func (s *Store) GetKeyByHash(ctx context.Context, hash string) (*kycgate.APIKey, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, key_hash, key_prefix, role, expires_at, blocked, last_used_at, created_at
		 FROM api_keys WHERE key_hash = $1`, hash,
	)
	return scanKey(row)
}

// TouchKeyUsed updates the last_used_at timestamp.
func (s *Store) TouchKeyUsed(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	return err
}

func scanKey(row pgx.Row) (*kycgate.APIKey, error) {
	var k kycgate.APIKey
	err := row.Scan(
		&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Role,
		&k.ExpiresAt, &k.Blocked, &k.LastUsedAt, &k.CreatedAt,
	)
	if err != nil {
		return nil, notFoundErr(err)
	}
	k.ExpiresAt = utcPtr(k.ExpiresAt)
	k.LastUsedAt = utcPtr(k.LastUsedAt)
	k.CreatedAt = k.CreatedAt.UTC()
	return &k, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
