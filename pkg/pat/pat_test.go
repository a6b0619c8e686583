package pat

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
	raw, prefix, hash, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if !strings.HasPrefix(raw, TokenPrefix) {
		t.Errorf("raw token = %q, want %s prefix", raw, TokenPrefix)
	}
	if !strings.HasPrefix(prefix, TokenPrefix) {
		t.Errorf("prefix = %q, want %s prefix", prefix, TokenPrefix)
	}
	if len(prefix) >= len(raw) {
		t.Errorf("prefix %q should be shorter than raw token", prefix)
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
		t.Fatal("two calls to Generate() produced the same token")
	}
}

func TestFromInfo(t *testing.T) {
	now := time.Now()
	id := uuid.New()
	info := store.PATInfo{
		ID:        id,
		Name:      "laptop",
		Prefix:    TokenPrefix + "abcd1234",
		CreatedAt: now,
	}

	got := FromInfo(info)
	if got.ID != id.String() || got.Name != "laptop" || got.Prefix != info.Prefix {
		t.Errorf("FromInfo() = %+v, want fields copied from %+v", got, info)
	}
	if got.CreatedAt != now {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
}
