// Package pat manages Account-scoped personal access tokens (the §6
// /user/tokens surface): a provisioned key's owner can mint a bearer
// token for programmatic use without re-sending their vault password.
// internal/store owns the table (CreatePAT/ListPATsByAccount/DeletePAT);
// this package supplies the DTOs and the raw-token minting logic.
package pat

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/duskline/bunker/internal/store"
)

// TokenPrefix identifies bunker PATs in leaked-credential scans.
const TokenPrefix = "bnkr_pat_"

// CreateRequest is the JSON body for POST /user/tokens.
type CreateRequest struct {
	KeyName   string `json:"keyName" validate:"required"`
	Password  string `json:"password" validate:"required"`
	Name      string `json:"name" validate:"required,min=1,max=100"`
	ExpiresIn *int   `json:"expiresInDays"`
}

// Token is the JSON response for a single PAT (without its hash).
type Token struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// CreateResponse includes the full token (shown only once).
type CreateResponse struct {
	Token
	RawToken string `json:"rawToken"`
}

// ListResponse wraps a list of tokens.
type ListResponse struct {
	Tokens []Token `json:"tokens"`
	Count  int     `json:"count"`
}

// FromInfo converts a store.PATInfo row into the public DTO.
func FromInfo(p store.PATInfo) Token {
	return Token{
		ID:         p.ID.String(),
		Name:       p.Name,
		Prefix:     p.Prefix,
		ExpiresAt:  p.ExpiresAt,
		LastUsedAt: p.LastUsedAt,
		CreatedAt:  p.CreatedAt,
	}
}

// Generate mints a new random PAT and returns (rawToken, prefix, hash).
func Generate() (raw, prefix, hash string, err error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", fmt.Errorf("generating token: %w", err)
	}
	raw = TokenPrefix + hex.EncodeToString(b)
	prefix = raw[:len(TokenPrefix)+8]
	h := sha256.Sum256([]byte(raw))
	hash = hex.EncodeToString(h[:])
	return raw, prefix, hash, nil
}
