package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	kycgate "github.com/eugener/kycgate/internal"
)

const keyColumns = `id, name, key_hash, key_prefix, role, expires_at, blocked, last_used_at, created_at`

// CreateKey inserts a new admin API key.
func (s *Store) CreateKey(ctx context.Context, key *kycgate.APIKey) error {
	role := key.Role
	if role == "" {
		role = "viewer"
	}
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO api_keys (`+keyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, role,
		timeToStr(key.ExpiresAt), boolToInt(key.Blocked), timeToStr(key.LastUsedAt),
		formatTime(key.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("api key %s: %w", key.KeyPrefix, kycgate.ErrConflict)
	}
	return err
}

// GetKeyByHash retrieves an API key by its SHA-256 hash.
func (s *Store) GetKeyByHash(ctx context.Context, hash string) (*kycgate.APIKey, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE key_hash = ?`, hash,
	)
	return scanKey(row)
}

// TouchKeyUsed updates the last_used_at timestamp.
func (s *Store) TouchKeyUsed(ctx context.Context, id string) error {
	_, err := s.write.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at=? WHERE id=?`,
		formatTime(time.Now()), id,
	)
	return err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanKey(s scanner) (*kycgate.APIKey, error) {
	var k kycgate.APIKey
	var expiresAt, lastUsedAt sql.NullString
	var createdAt string
	var blocked int

	err := s.Scan(
		&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Role,
		&expiresAt, &blocked, &lastUsedAt, &createdAt,
	)
	if err != nil {
		return nil, notFoundErr(err)
	}
	k.Blocked = blocked != 0
	k.ExpiresAt = parseNullTime(expiresAt)
	k.LastUsedAt = parseNullTime(lastUsedAt)
	k.CreatedAt = parseTime(createdAt)
	return &k, nil
}

// helpers

// notFoundErr translates sql.ErrNoRows to kycgate.ErrNotFound.
func notFoundErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return kycgate.ErrNotFound
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func timeToStr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
