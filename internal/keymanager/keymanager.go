// Package keymanager bridges the daemon's vault document and runtime
// keyring to the three narrow interfaces the rest of the tree depends on
// (admin.KeyLoader, provisioning.KeyLoader, api.KeyManager), so none of
// those packages need to import internal/vault directly. Grounded on the
// teacher's pattern of a single small adapter type per external dependency
// boundary (e.g. internal/platform's postgres/redis constructors).
package keymanager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/duskline/bunker/internal/api"
	"github.com/duskline/bunker/internal/keyring"
	"github.com/duskline/bunker/internal/vault"
)

// Manager owns the vault document and the runtime keyring, and persists
// every mutation back to disk before it takes effect in memory.
type Manager struct {
	path   string
	relays []string
	keys   *keyring.Keyring

	mu  sync.Mutex
	doc *vault.Document
}

// New constructs a Manager from an already-loaded vault document.
func New(path string, doc *vault.Document, keys *keyring.Keyring) *Manager {
	return &Manager{
		path:   path,
		relays: doc.Nostr.Relays,
		keys:   keys,
		doc:    doc,
	}
}

// LoadPlainKeys materialises every plain-text StoredKey in the document
// into the keyring at boot (§4.1's "load plain keys" step); encrypted
// entries stay locked until unlock_key supplies a passphrase.
func (m *Manager) LoadPlainKeys() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, sk := range m.doc.Keys {
		if sk.IsEncrypted() {
			continue
		}
		if _, err := m.keys.Put(name, sk.Key); err != nil {
			return fmt.Errorf("keymanager: loading %s: %w", name, err)
		}
	}
	return nil
}

// AddKey persists a freshly-generated or caller-supplied secret under name,
// encrypting it at rest if passphrase is non-empty, and loads it into the
// keyring. Implements admin.KeyLoader.
func (m *Manager) AddKey(ctx context.Context, name, secretHex, passphrase string) (*keyring.ActiveKey, error) {
	if secretHex == "" {
		var buf [32]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, fmt.Errorf("keymanager: generating secret: %w", err)
		}
		secretHex = hex.EncodeToString(buf[:])
	}

	var sk vault.StoredKey
	if passphrase != "" {
		enc, err := vault.EncryptSecret(secretHex, passphrase)
		if err != nil {
			return nil, fmt.Errorf("keymanager: encrypting %s: %w", name, err)
		}
		sk = enc
	} else {
		sk = vault.StoredKey{Key: secretHex}
	}

	if err := m.putAndSave(name, sk); err != nil {
		return nil, err
	}
	return m.keys.Put(name, secretHex)
}

// AddPlainKey is AddKey with no passphrase. Implements provisioning.KeyLoader.
func (m *Manager) AddPlainKey(ctx context.Context, name, secretHex string) (*keyring.ActiveKey, error) {
	return m.AddKey(ctx, name, secretHex, "")
}

// UnlockKey decrypts an at-rest encrypted entry with passphrase and loads
// it into the keyring. Implements admin.KeyLoader.
func (m *Manager) UnlockKey(ctx context.Context, name, passphrase string) (*keyring.ActiveKey, error) {
	m.mu.Lock()
	sk, ok := m.doc.Keys[name]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("keymanager: no such key %q", name)
	}

	secretHex, err := vault.DecryptSecret(sk, passphrase)
	if err != nil {
		return nil, err
	}
	return m.keys.Put(name, secretHex)
}

// IsEncrypted reports whether name's vault entry is passphrase-protected.
// Implements api.KeyManager.
func (m *Manager) IsEncrypted(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sk, ok := m.doc.Keys[name]
	if !ok {
		return false, fmt.Errorf("keymanager: no such key %q", name)
	}
	return sk.IsEncrypted(), nil
}

// ListKeys returns per-stored-key status for GET /keys. Implements
// api.KeyManager.
func (m *Manager) ListKeys() []api.KeyStatus {
	m.mu.Lock()
	names := make([]string, 0, len(m.doc.Keys))
	for name := range m.doc.Keys {
		names = append(names, name)
	}
	m.mu.Unlock()

	out := make([]api.KeyStatus, 0, len(names))
	for _, name := range names {
		out = append(out, m.statusOf(name))
	}
	return out
}

// CreateKey creates a new key (random secret) or imports one from an nsec
// or hex secret, per POST /keys's `{keyName, passphrase?, nsec?}` body.
// Implements api.KeyManager.
func (m *Manager) CreateKey(name, passphrase, nsec string) (api.KeyStatus, error) {
	secretHex, err := decodeSecret(nsec)
	if err != nil {
		return api.KeyStatus{}, err
	}
	if _, err := m.AddKey(context.Background(), name, secretHex, passphrase); err != nil {
		return api.KeyStatus{}, err
	}
	return m.statusOf(name), nil
}

func decodeSecret(nsec string) (string, error) {
	if nsec == "" {
		return "", nil
	}
	if _, err := hex.DecodeString(nsec); err == nil && len(nsec) == 64 {
		return nsec, nil
	}
	prefix, data, err := nip19.Decode(nsec)
	if err != nil {
		return "", fmt.Errorf("keymanager: decoding nsec: %w", err)
	}
	if prefix != "nsec" {
		return "", fmt.Errorf("keymanager: expected nsec, got %s", prefix)
	}
	secretHex, ok := data.(string)
	if !ok {
		return "", fmt.Errorf("keymanager: malformed nsec")
	}
	return secretHex, nil
}

func (m *Manager) statusOf(name string) api.KeyStatus {
	m.mu.Lock()
	sk := m.doc.Keys[name]
	m.mu.Unlock()

	status := api.KeyStatus{Name: name, Locked: sk.IsEncrypted()}
	if ak, ok := m.keys.Get(name); ok {
		status.PubKeyHex = ak.PubKeyHex
		if npub, err := nip19.EncodePublicKey(ak.PubKeyHex); err == nil {
			status.Npub = npub
		}
		status.BunkerURI = bunkerURI(ak.PubKeyHex, m.relays)
	} else if !sk.IsEncrypted() {
		if pub, err := nostr.GetPublicKey(sk.Key); err == nil {
			status.PubKeyHex = pub
		}
	}
	return status
}

func bunkerURI(pubkeyHex string, relays []string) string {
	uri := "bunker://" + pubkeyHex
	for i, relay := range relays {
		sep := "?"
		if i > 0 {
			sep = "&"
		}
		uri += sep + "relay=" + relay
	}
	return uri
}

func (m *Manager) putAndSave(name string, sk vault.StoredKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc.Keys == nil {
		m.doc.Keys = make(map[string]vault.StoredKey)
	}
	m.doc.Keys[name] = sk
	return vault.Save(m.path, m.doc)
}
