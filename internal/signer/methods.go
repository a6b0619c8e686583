package signer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/nbd-wtf/go-nostr/nip44"
)

// methodHandler executes one NIP-46 method against an already-decrypted,
// already-parsed request and returns the success-result string.
type methodHandler func(ctx context.Context, e *Endpoint, clientPub string, req *Request) (string, error)

var methods = map[string]methodHandler{
	"connect":        handleConnect,
	"ping":           handlePing,
	"get_public_key": handleGetPublicKey,
	"sign_event":     handleSignEvent,
	"nip04_encrypt":  handleNIP04Encrypt,
	"nip04_decrypt":  handleNIP04Decrypt,
	"nip44_encrypt":  handleNIP44Encrypt,
	"nip44_decrypt":  handleNIP44Decrypt,
}

func handlePing(ctx context.Context, e *Endpoint, clientPub string, req *Request) (string, error) {
	return "pong", nil
}

func handleGetPublicKey(ctx context.Context, e *Endpoint, clientPub string, req *Request) (string, error) {
	return e.key.PubKeyHex, nil
}

// handleConnect redeems a connect token through the Policy Store (C2) when
// one is present in params[1]; otherwise it falls through the normal
// authorization callback, per §4.4.
func handleConnect(ctx context.Context, e *Endpoint, clientPub string, req *Request) (string, error) {
	if len(req.Params) >= 2 && req.Params[1] != "" {
		if _, err := e.st.RedeemToken(ctx, req.Params[1], clientPub); err != nil {
			return "", fmt.Errorf("redeeming connect token: %w", err)
		}
		return "ok", nil
	}

	_, ok, err := e.authorize(ctx, clientPub, req.ID, "connect", req.Params)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("connect request denied")
	}
	return "ok", nil
}

// handleSignEvent authorizes against the unsigned event JSON (params[0]),
// then signs with the endpoint's ActiveKey.
func handleSignEvent(ctx context.Context, e *Endpoint, clientPub string, req *Request) (string, error) {
	if len(req.Params) < 1 {
		return "", fmt.Errorf("sign_event: missing event parameter")
	}

	approved, ok, err := e.authorize(ctx, clientPub, req.ID, "sign_event", req.Params)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("sign_event request denied")
	}

	var ev nostr.Event
	if err := json.Unmarshal([]byte(approved[0]), &ev); err != nil {
		return "", fmt.Errorf("sign_event: invalid event json: %w", err)
	}

	ev.PubKey = e.key.PubKeyHex
	if ev.CreatedAt == 0 {
		ev.CreatedAt = nostr.Now()
	}
	if err := ev.Sign(e.key.SecretHex); err != nil {
		return "", fmt.Errorf("sign_event: signing: %w", err)
	}

	out, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("sign_event: marshaling signed event: %w", err)
	}
	return string(out), nil
}

func handleNIP04Encrypt(ctx context.Context, e *Endpoint, clientPub string, req *Request) (string, error) {
	if len(req.Params) < 2 {
		return "", fmt.Errorf("nip04_encrypt: expected [peer_pubkey, plaintext]")
	}
	if _, ok, err := e.authorize(ctx, clientPub, req.ID, "nip04_encrypt", req.Params); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("nip04_encrypt request denied")
	}

	shared, err := nip04.ComputeSharedSecret(req.Params[0], e.key.SecretHex)
	if err != nil {
		return "", fmt.Errorf("nip04_encrypt: shared secret: %w", err)
	}
	return nip04.Encrypt(req.Params[1], shared)
}

func handleNIP04Decrypt(ctx context.Context, e *Endpoint, clientPub string, req *Request) (string, error) {
	if len(req.Params) < 2 {
		return "", fmt.Errorf("nip04_decrypt: expected [peer_pubkey, ciphertext]")
	}
	if _, ok, err := e.authorize(ctx, clientPub, req.ID, "nip04_decrypt", req.Params); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("nip04_decrypt request denied")
	}

	shared, err := nip04.ComputeSharedSecret(req.Params[0], e.key.SecretHex)
	if err != nil {
		return "", fmt.Errorf("nip04_decrypt: shared secret: %w", err)
	}
	return nip04.Decrypt(req.Params[1], shared)
}

func handleNIP44Encrypt(ctx context.Context, e *Endpoint, clientPub string, req *Request) (string, error) {
	if len(req.Params) < 2 {
		return "", fmt.Errorf("nip44_encrypt: expected [peer_pubkey, plaintext]")
	}
	if _, ok, err := e.authorize(ctx, clientPub, req.ID, "nip44_encrypt", req.Params); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("nip44_encrypt request denied")
	}

	convKey, err := nip44.GenerateConversationKey(req.Params[0], e.key.SecretHex)
	if err != nil {
		return "", fmt.Errorf("nip44_encrypt: conversation key: %w", err)
	}
	return nip44.Encrypt(req.Params[1], convKey)
}

func handleNIP44Decrypt(ctx context.Context, e *Endpoint, clientPub string, req *Request) (string, error) {
	if len(req.Params) < 2 {
		return "", fmt.Errorf("nip44_decrypt: expected [peer_pubkey, ciphertext]")
	}
	if _, ok, err := e.authorize(ctx, clientPub, req.ID, "nip44_decrypt", req.Params); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("nip44_decrypt request denied")
	}

	convKey, err := nip44.GenerateConversationKey(req.Params[0], e.key.SecretHex)
	if err != nil {
		return "", fmt.Errorf("nip44_decrypt: conversation key: %w", err)
	}
	return nip44.Decrypt(req.Params[1], convKey)
}
