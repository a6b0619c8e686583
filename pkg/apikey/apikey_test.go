package apikey

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/duskline/bunker/internal/store"
)

func TestGenerate(t *testing.T) {
	raw, hash, prefix, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if !strings.HasPrefix(raw, "bnkr_") {
		t.Errorf("raw key = %q, want bnkr_ prefix", raw)
	}
	if prefix != raw[:10] {
		t.Errorf("prefix = %q, want %q", prefix, raw[:10])
	}

	want := sha256.Sum256([]byte(raw))
	if hash != hex.EncodeToString(want[:]) {
		t.Errorf("hash does not match sha256(raw)")
	}
}

func TestGenerate_Unique(t *testing.T) {
	raw1, _, _, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	raw2, _, _, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if raw1 == raw2 {
		t.Fatal("two calls to Generate() produced the same key")
	}
}

func TestFromInfo(t *testing.T) {
	now := time.Now()
	id := uuid.New()
	info := store.APIKeyInfo{
		ID:        id,
		Name:      "ci-runner",
		KeyPrefix: "bnkr_abcd",
		Role:      "admin",
		CreatedAt: now,
	}

	got := FromInfo(info)
	if got.ID != id || got.Name != "ci-runner" || got.KeyPrefix != "bnkr_abcd" || got.Role != "admin" {
		t.Errorf("FromInfo() = %+v, want fields copied from %+v", got, info)
	}
	if got.CreatedAt != now {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
}
