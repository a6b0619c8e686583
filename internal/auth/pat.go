package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// PATPrefix identifies personal access tokens.
const PATPrefix = "bnkr_pat_"

// PATAuthResult holds resolved identity data from a PAT lookup.
type PATAuthResult struct {
	AccountID   string
	Email       string
	DisplayName string
	Role        string
}

// PATAuthenticator validates personal access tokens against Store.
type PATAuthenticator struct {
	store Store
}

// NewPATAuthenticator creates a PAT authenticator.
func NewPATAuthenticator(store Store) *PATAuthenticator {
	return &PATAuthenticator{store: store}
}

// Authenticate validates a raw PAT string by looking up its prefix, verifying
// the hash, and checking expiry.
func (a *PATAuthenticator) Authenticate(ctx context.Context, rawToken string) (*PATAuthResult, error) {
	if len(rawToken) < len(PATPrefix)+8 {
		return nil, fmt.Errorf("token too short")
	}
	prefix := rawToken[:len(PATPrefix)+8]
	expectedHash := hashPAT(rawToken)

	row, tokenHash, err := a.store.FindPATByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("token not found")
	}
	if tokenHash != expectedHash {
		return nil, fmt.Errorf("invalid token")
	}
	if row.ExpiresAt != nil && row.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("token expired at %s", row.ExpiresAt)
	}

	go func() {
		_ = a.store.UpdatePATLastUsed(context.Background(), prefix)
	}()

	return &PATAuthResult{
		AccountID:   row.AccountID.String(),
		Email:       row.Email,
		DisplayName: row.DisplayName,
		Role:        row.Role,
	}, nil
}

func hashPAT(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
