package store

import (
	"time"

	"github.com/google/uuid"
)

// KeyUser is a unique (keyName, userPubkey) pair: a remote client
// authorised against one user key.
type KeyUser struct {
	ID          uuid.UUID
	KeyName     string
	UserPubkey  string
	Description string
	CreatedAt   time.Time
	LastUsedAt  *time.Time
	RevokedAt   *time.Time
}

// Revoked reports whether the KeyUser has been soft-deleted.
func (u KeyUser) Revoked() bool {
	return u.RevokedAt != nil
}

// SigningCondition is a row (keyUserId, method, kindFilter, allowed).
// kindFilter is "" (unset), "all", or a specific kind as a decimal string.
type SigningCondition struct {
	ID         uuid.UUID
	KeyUserID  uuid.UUID
	Method     string
	KindFilter string
	Allowed    bool
	CreatedAt  time.Time
}

// Policy is a named, optionally-expiring bundle of PolicyRule templates.
type Policy struct {
	ID        uuid.UUID
	Name      string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// PolicyRule is a template rule applied at token redemption time.
type PolicyRule struct {
	ID               uuid.UUID
	PolicyID         uuid.UUID
	Method           string
	KindFilter       string
	MaxUsageCount    *int
	CurrentUsageCount int
}

// Token is an opaque 256-bit nonce redeemable exactly once.
type Token struct {
	ID         uuid.UUID
	Secret     string
	KeyName    string
	ClientName string
	PolicyID   uuid.UUID
	CreatedBy  string
	ExpiresAt  *time.Time
	RedeemedAt *time.Time
	KeyUserID  *uuid.UUID
	CreatedAt  time.Time
}

// PendingRequest is a request awaiting an admin decision.
type PendingRequest struct {
	ID           uuid.UUID
	RequestID    string
	KeyName      string
	RemotePubkey string
	Method       string
	Params       string // raw JSON array as received
	Allowed      *bool
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// AuditLogEntry is an append-only audit record.
type AuditLogEntry struct {
	ID        uuid.UUID
	Timestamp time.Time
	Type      string
	Method    string
	Params    string
	KeyUserID *uuid.UUID
}

// Account is the password-authenticated owner of a provisioned user key.
type Account struct {
	ID           uuid.UUID
	KeyName      string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// APIKeyInfo is an API key row without its hash, for dashboard listing.
type APIKeyInfo struct {
	ID         uuid.UUID
	Name       string
	KeyPrefix  string
	Role       string
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// PATInfo is a personal access token row without its hash, for listing.
type PATInfo struct {
	ID         uuid.UUID
	Name       string
	Prefix     string
	Role       string
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}
