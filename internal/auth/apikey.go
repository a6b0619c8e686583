package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKeyAuthenticator validates API keys against Store.
type APIKeyAuthenticator struct {
	store Store
}

// NewAPIKeyAuthenticator creates an API key authenticator.
func NewAPIKeyAuthenticator(store Store) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{store: store}
}

// APIKeyResult holds the resolved identity data from an API key lookup.
type APIKeyResult struct {
	APIKeyID  uuid.UUID
	KeyPrefix string
	Role      string
}

// Authenticate hashes the raw key, looks it up, and validates expiration.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, rawKey string) (*APIKeyResult, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("empty API key")
	}

	hash := HashAPIKey(rawKey)
	key, err := a.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("looking up API key: %w", err)
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("API key expired at %s", key.ExpiresAt)
	}

	go func() {
		_ = a.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)
	}()

	role := key.Role
	if !IsValidRole(role) {
		role = RoleReadonly
	}

	return &APIKeyResult{APIKeyID: key.ID, KeyPrefix: key.KeyPrefix, Role: role}, nil
}
