package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Roles supported by the dashboard RBAC system. The bunker has no notion of
// per-tenant roles (spec.md's Non-goals exclude multi-tenant isolation): an
// identity is either the single dashboard administrator or a read-only
// scripted caller.
const (
	RoleAdmin    = "admin"
	RoleReadonly = "readonly"
)

// ValidRoles lists all known roles in descending privilege order.
var ValidRoles = []string{RoleAdmin, RoleReadonly}

// Method describes how the caller was authenticated.
const (
	MethodOIDC    = "oidc"
	MethodLocal   = "local"
	MethodSession = "session"
	MethodPAT     = "pat"
	MethodAPIKey  = "apikey"
)

// Identity represents the authenticated caller for the current dashboard
// request. It is unrelated to a KeyUser (internal/acl), which identifies a
// remote NIP-46 client pubkey, not a dashboard principal.
type Identity struct {
	Subject     string     // username, email, or "apikey:<prefix>"
	Email       string     // empty for API keys
	DisplayName string     // empty for API keys
	Role        string     // one of the Role* constants
	AdminID     *uuid.UUID // non-nil for the local DashboardAdmin
	APIKeyID    *uuid.UUID // non-nil for API key authentication
	Method      string     // one of the Method* constants
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if no
// identity is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

// IsValidRole reports whether role is a recognised RBAC role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// HashAPIKey returns the SHA-256 hex digest of a raw API key.
func HashAPIKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
