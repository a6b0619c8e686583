package vault

import (
	"encoding/json"
	"fmt"
	"os"
)

// NostrConfig holds the relays the bunker subscribes on for user-key traffic.
type NostrConfig struct {
	Relays []string `json:"relays"`
}

// AdminConfig holds the admin allow-list and the bunker's own admin identity.
type AdminConfig struct {
	Npubs              []string `json:"npubs"`
	AdminRelays        []string `json:"adminRelays"`
	Key                string   `json:"key"`
	Secret             string   `json:"secret,omitempty"`
	NotifyAdminsOnBoot bool     `json:"notifyAdminsOnBoot,omitempty"`
}

// Document is the vault/config JSON file described in §6: nostr relays, the
// admin identity and allow-list, HTTP listen settings, and the named key
// entries.
type Document struct {
	Nostr    NostrConfig          `json:"nostr"`
	Admin    AdminConfig          `json:"admin"`
	AuthPort int                  `json:"authPort,omitempty"`
	AuthHost string               `json:"authHost,omitempty"`
	BaseURL  string               `json:"baseUrl,omitempty"`
	Database string               `json:"database,omitempty"`
	Logs     string               `json:"logs,omitempty"`
	Keys     map[string]StoredKey `json:"keys"`
	Domains  []string             `json:"domains,omitempty"`
	Verbose  bool                 `json:"verbose,omitempty"`
}

// Load reads and parses the vault document from path. A missing or
// unreadable file is fatal per spec §4.1.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vault: reading %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("vault: parsing %s: %w", path, err)
	}
	if doc.Keys == nil {
		doc.Keys = make(map[string]StoredKey)
	}
	return &doc, nil
}

// Save writes the vault document back to path atomically: it writes to a
// temp file in the same directory and renames over the original, so a
// concurrent reader never observes a partially-written config.
func Save(path string, doc *Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: encoding document: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("vault: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("vault: renaming temp file: %w", err)
	}
	return nil
}
