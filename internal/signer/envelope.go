package signer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/nbd-wtf/go-nostr/nip44"
)

// Request is the NIP-46 JSON-RPC-ish envelope carried as the decrypted
// content of a kind-24133 event.
type Request struct {
	ID     string   `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// Response is the NIP-46 reply envelope. Result carries either the success
// value, the literal "auth_url" sentinel paired with Error holding the URL,
// or "error" paired with Error holding the human message.
type Response struct {
	ID     string `json:"id"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// decryptEnvelope decrypts a NIP-46 payload using whichever scheme the
// sender used: NIP-04 payloads carry the "?iv=" suffix marker; anything
// else is tried as NIP-44.
func decryptEnvelope(content, theirPubHex, ourSecHex string) (string, error) {
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

// encryptEnvelope encrypts a reply using NIP-44, the scheme this bunker
// prefers for its own outbound traffic.
func encryptEnvelope(plaintext, theirPubHex, ourSecHex string) (string, error) {
	convKey, err := nip44.GenerateConversationKey(theirPubHex, ourSecHex)
	if err != nil {
		return "", fmt.Errorf("nip44 conversation key: %w", err)
	}
	return nip44.Encrypt(plaintext, convKey)
}

func parseRequest(plaintext string) (*Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(plaintext), &req); err != nil {
		return nil, err
	}
	if req.Method == "" {
		return nil, fmt.Errorf("missing method")
	}
	return &req, nil
}
