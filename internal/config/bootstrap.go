package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/app"
	"github.com/eugener/kycgate/internal/storage"
)

// Bootstrap seeds admin API keys from the config file. Keys already present
// (matched by hash) are left untouched, so it is safe on every start.
func Bootstrap(ctx context.Context, cfg *Config, store storage.APIKeyStore) error {
	for _, k := range cfg.Keys {
		if k.Key == "" {
			continue
		}
		hash := kycgate.HashKey(k.Key)

		_, err := store.GetKeyByHash(ctx, hash)
		if err == nil {
			continue
		}
		if !errors.Is(err, kycgate.ErrNotFound) {
			return fmt.Errorf("lookup seed key %q: %w", k.Name, err)
		}

		role := k.Role
		if role == "" {
			role = "admin"
		}

		key := &kycgate.APIKey{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Name:      k.Name,
			KeyHash:   hash,
			KeyPrefix: app.KeyPrefix(k.Key),
			Role:      role,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.CreateKey(ctx, key); err != nil {
			return fmt.Errorf("seed key %q: %w", k.Name, err)
		}
		slog.Info("bootstrapped api key", "name", k.Name, "prefix", key.KeyPrefix, "role", role)
	}
	return nil
}
