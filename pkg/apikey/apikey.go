// Package apikey manages the dashboard's long-lived API keys (A3): random
// secrets shown once at creation, stored only as a SHA-256 hash, verified
// by internal/auth.APIKeyAuthenticator on every authenticated request.
// internal/store owns the table itself (CreateAPIKey/ListAPIKeys/
// DeleteAPIKey); this package supplies the request/response DTOs and the
// one piece of domain logic store shouldn't own: minting the raw secret.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/duskline/bunker/internal/store"
)

// CreateRequest is the JSON body for POST /admin/api-keys.
type CreateRequest struct {
	Description string `json:"description" validate:"required"`
	Role        string `json:"role" validate:"required"`
}

// Response is the JSON response for a single API key (without the raw key).
type Response struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"keyPrefix"`
	Role       string     `json:"role"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// CreateResponse includes the raw key (only shown once at creation).
type CreateResponse struct {
	Response
	RawKey string `json:"rawKey"`
}

// FromInfo converts a store.APIKeyInfo row into the public DTO.
func FromInfo(k store.APIKeyInfo) Response {
	return Response{
		ID:         k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		Role:       k.Role,
		LastUsedAt: k.LastUsedAt,
		ExpiresAt:  k.ExpiresAt,
		CreatedAt:  k.CreatedAt,
	}
}

// Generate creates a random API key with a "bnkr_" prefix, its SHA-256
// hash, and a short display prefix.
func Generate() (raw, hash, prefix string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", fmt.Errorf("generating api key: %w", err)
	}
	raw = fmt.Sprintf("bnkr_%x", b)
	h := sha256.Sum256([]byte(raw))
	hash = hex.EncodeToString(h[:])
	prefix = raw[:10]
	return raw, hash, prefix, nil
}
