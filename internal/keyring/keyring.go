// Package keyring holds the ActiveKey map: runtime-unlocked secrets shared
// by the Signer Core. It is constructed once by the daemon and passed by
// reference to every component that needs to read or unlock a key, rather
// than living behind a package-level global (spec §9).
package keyring

import (
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// ActiveKey is a runtime-unlocked secret key for a named StoredKey. It is
// materialised at boot from plain StoredKeys, or on demand via unlock_key,
// and never serialised. Keyring.Remove zeroises a key's secret; keys still
// loaded when the daemon exits are not zeroised.
type ActiveKey struct {
	Name      string
	SecretHex string
	PubKeyHex string
}

// Keyring guards the ActiveKey map with a single writer, read-often.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]*ActiveKey
}

// New creates an empty Keyring.
func New() *Keyring {
	return &Keyring{keys: make(map[string]*ActiveKey)}
}

// Put loads or replaces an ActiveKey by name.
func (k *Keyring) Put(name, secretHex string) (*ActiveKey, error) {
	pub, err := nostr.GetPublicKey(secretHex)
	if err != nil {
		return nil, err
	}

	ak := &ActiveKey{Name: name, SecretHex: secretHex, PubKeyHex: pub}

	k.mu.Lock()
	k.keys[name] = ak
	k.mu.Unlock()

	return ak, nil
}

// Get returns the ActiveKey for name, or false if it is not loaded.
func (k *Keyring) Get(name string) (*ActiveKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	ak, ok := k.keys[name]
	return ak, ok
}

// ByPubKey finds the ActiveKey whose pubkey matches pub, or false.
func (k *Keyring) ByPubKey(pub string) (*ActiveKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, ak := range k.keys {
		if ak.PubKeyHex == pub {
			return ak, true
		}
	}
	return nil, false
}

// Names returns the names of every currently-loaded key.
func (k *Keyring) Names() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	names := make([]string, 0, len(k.keys))
	for name := range k.keys {
		names = append(names, name)
	}
	return names
}

// Remove zeroises and drops an ActiveKey.
func (k *Keyring) Remove(name string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if ak, ok := k.keys[name]; ok {
		zero(ak)
		delete(k.keys, name)
	}
}

func zero(ak *ActiveKey) {
	ak.SecretHex = ""
}
