// Package vault implements at-rest encryption and in-memory custody of
// user signing keys, per the on-disk layout fixed by the connection
// descriptor and config file (§6).
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100_000
	keyLen           = 32 // AES-256
	saltLen          = 16
	ivLen            = 16
)

// ErrDecryptionFailed indicates the passphrase did not match the stored key.
var ErrDecryptionFailed = errors.New("vault: decryption failed")

// ErrCorruptEntry indicates a vault entry's hex-encoded fields could not be
// decoded or sized.
var ErrCorruptEntry = errors.New("vault: corrupt vault entry")

// StoredKey is a named vault entry, exactly one of the two forms per the
// spec's invariant: either passphrase-encrypted ({IV, Data}) or plain
// ({Key}).
type StoredKey struct {
	IV   string `json:"iv,omitempty"`
	Data string `json:"data,omitempty"`
	Key  string `json:"key,omitempty"`
}

// IsEncrypted reports whether this entry is in ciphertext form.
func (k StoredKey) IsEncrypted() bool {
	return k.IV != "" || k.Data != ""
}

// EncryptSecret encrypts plaintext (a hex-encoded secret key) under
// passphrase, producing the {iv, data} pair stored on disk. data is
// hex(salt ∥ aes-cbc(plaintext)); iv is hex(iv).
func EncryptSecret(plaintext, passphrase string) (StoredKey, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return StoredKey{}, fmt.Errorf("vault: generating salt: %w", err)
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return StoredKey{}, fmt.Errorf("vault: generating iv: %w", err)
	}

	derived := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return StoredKey{}, fmt.Errorf("vault: creating cipher: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(ciphertext, padded)

	return StoredKey{
		IV:   hex.EncodeToString(iv),
		Data: hex.EncodeToString(append(salt, ciphertext...)),
	}, nil
}

// DecryptSecret reverses EncryptSecret. Returns ErrDecryptionFailed if the
// passphrase is wrong (detected via malformed PKCS#7 padding), or
// ErrCorruptEntry if the hex fields are malformed or too short.
func DecryptSecret(entry StoredKey, passphrase string) (string, error) {
	iv, err := hex.DecodeString(entry.IV)
	if err != nil || len(iv) != ivLen {
		return "", ErrCorruptEntry
	}
	raw, err := hex.DecodeString(entry.Data)
	if err != nil || len(raw) <= saltLen {
		return "", ErrCorruptEntry
	}
	if len(raw)%aes.BlockSize != 0 {
		return "", ErrCorruptEntry
	}

	salt, ciphertext := raw[:saltLen], raw[saltLen:]
	derived := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return "", ErrCorruptEntry
	}

	plainPadded := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(plainPadded, ciphertext)

	plain, err := pkcs7Unpad(plainPadded, aes.BlockSize)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLen, sha256.New)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	pad := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, pad...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding bytes")
		}
	}
	return data[:n-padLen], nil
}
