package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DashboardAdminRow is the row shape auth needs for the single local
// administrator credential.
type DashboardAdminRow struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	MustChange   bool
}

// APIKeyRow is the row shape auth needs to authenticate an API key.
type APIKeyRow struct {
	ID        uuid.UUID
	KeyPrefix string
	Role      string
	ExpiresAt *time.Time
}

// PATRow is the row shape auth needs to authenticate a personal access token.
type PATRow struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Email       string
	DisplayName string
	Role        string
	ExpiresAt   *time.Time
}

// Store abstracts the persistence operations auth needs, so the package does
// not depend directly on internal/store's pgx plumbing (and is easy to fake
// in tests). *store.Store (internal/store) implements this.
type Store interface {
	FindDashboardAdmin(ctx context.Context, username string) (*DashboardAdminRow, error)
	GetDashboardAdminPasswordHash(ctx context.Context, adminID uuid.UUID) (string, error)
	UpdateDashboardAdminPassword(ctx context.Context, adminID uuid.UUID, newHash string, mustChange bool) error
	UpdateDashboardAdminLastLogin(ctx context.Context, adminID uuid.UUID) error

	GetAPIKeyByHash(ctx context.Context, hash string) (*APIKeyRow, error)
	UpdateAPIKeyLastUsed(ctx context.Context, keyID uuid.UUID) error

	FindPATByPrefix(ctx context.Context, prefix string) (*PATRow, string, error)
	UpdatePATLastUsed(ctx context.Context, prefix string) error
}
