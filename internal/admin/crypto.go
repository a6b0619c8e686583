package admin

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/nbd-wtf/go-nostr/nip44"
)

// decryptFrom mirrors internal/signer's envelope decryption: NIP-04
// payloads are recognisable by the "?iv=" suffix marker, everything else is
// tried as NIP-44.
func decryptFrom(content, theirPubHex, ourSecHex string) (string, error) {
	if strings.Contains(content, "?iv=") {
		shared, err := nip04.ComputeSharedSecret(theirPubHex, ourSecHex)
		if err != nil {
			return "", fmt.Errorf("nip04 shared secret: %w", err)
		}
		return nip04.Decrypt(content, shared)
	}

	convKey, err := nip44.GenerateConversationKey(theirPubHex, ourSecHex)
	if err != nil {
		return "", fmt.Errorf("nip44 conversation key: %w", err)
	}
	return nip44.Decrypt(content, convKey)
}

// encryptTo encrypts outbound admin-channel traffic with NIP-44.
func encryptTo(plaintext []byte, theirPubHex, ourSecHex string) (string, error) {
	convKey, err := nip44.GenerateConversationKey(theirPubHex, ourSecHex)
	if err != nil {
		return "", fmt.Errorf("nip44 conversation key: %w", err)
	}
	return nip44.Encrypt(string(plaintext), convKey)
}
