package vault

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bunker.json")

	doc := &Document{
		Nostr:   NostrConfig{Relays: []string{"wss://relay.test"}},
		Admin:   AdminConfig{Npubs: []string{"npub1xyz"}, Key: "admin-key"},
		BaseURL: "https://bunker.test",
		Keys: map[string]StoredKey{
			"alice@bunker.test": {Key: "deadbeef"},
		},
	}

	if err := Save(path, doc); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got.BaseURL != doc.BaseURL {
		t.Errorf("BaseURL = %q, want %q", got.BaseURL, doc.BaseURL)
	}
	if len(got.Nostr.Relays) != 1 || got.Nostr.Relays[0] != "wss://relay.test" {
		t.Errorf("Nostr.Relays = %v, want [wss://relay.test]", got.Nostr.Relays)
	}
	if got.Admin.Key != "admin-key" {
		t.Errorf("Admin.Key = %q, want admin-key", got.Admin.Key)
	}
	key, ok := got.Keys["alice@bunker.test"]
	if !ok || key.Key != "deadbeef" {
		t.Errorf("Keys[alice@bunker.test] = %+v, want {Key: deadbeef}", key)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error loading a nonexistent vault document")
	}
}

func TestLoad_NilKeysInitialized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bunker.json")
	if err := Save(path, &Document{}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Keys == nil {
		t.Fatal("Load() should initialize a nil Keys map to empty, not leave it nil")
	}
	if len(got.Keys) != 0 {
		t.Errorf("Keys = %v, want empty", got.Keys)
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bunker.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error loading malformed JSON")
	}
}
