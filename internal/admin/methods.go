package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/duskline/bunker/internal/store"
)

// dispatch gates every method except create_account behind the admin
// allow-list, then routes to the matching handler.
func (c *Channel) dispatch(ctx context.Context, fromPubkey string, req envelope) envelope {
	if req.Method != "create_account" && !c.allowlist[fromPubkey] {
		return envelope{ID: req.ID, Error: "unauthorized"}
	}

	handler, ok := adminMethods[req.Method]
	if !ok {
		return envelope{ID: req.ID, Error: "unknown method"}
	}

	result, err := handler(ctx, c, fromPubkey, req.Params)
	if err != nil {
		c.logger.Info("admin method failed", "method", req.Method, "error", err)
		return envelope{ID: req.ID, Error: err.Error()}
	}
	return envelope{ID: req.ID, Result: result}
}

type adminHandler func(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error)

var adminMethods = map[string]adminHandler{
	"ping":              handlePing,
	"get_keys":          handleGetKeys,
	"get_key_users":     handleGetKeyUsers,
	"get_key_tokens":    handleGetKeyTokens,
	"get_policies":      handleGetPolicies,
	"create_new_key":    handleCreateNewKey,
	"create_new_policy": handleCreateNewPolicy,
	"create_new_token":  handleCreateNewToken,
	"rename_key_user":   handleRenameKeyUser,
	"revoke_user":       handleRevokeUser,
	"unlock_key":        handleUnlockKey,
	"create_account":    handleCreateAccount,
}

func handlePing(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error) {
	return "pong", nil
}

func handleGetKeys(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error) {
	out, err := json.Marshal(c.keys.Names())
	return string(out), err
}

func handleGetKeyUsers(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error) {
	users, err := c.st.ListKeyUsers(ctx)
	if err != nil {
		return "", err
	}
	if len(params) > 0 && params[0] != "" {
		var filtered []store.KeyUser
		for _, u := range users {
			if u.KeyName == params[0] {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}
	out, err := json.Marshal(users)
	return string(out), err
}

func handleGetKeyTokens(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error) {
	if len(params) < 1 {
		return "", fmt.Errorf("get_key_tokens: missing key name")
	}
	tokens, err := c.st.ListTokensByKey(ctx, params[0])
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(tokens)
	return string(out), err
}

func handleGetPolicies(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error) {
	policies, err := c.st.ListPolicies(ctx)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(policies)
	return string(out), err
}

// handleCreateNewKey generates a fresh secret, persists it to the vault
// (encrypted if a passphrase is given), and loads it into the keyring.
func handleCreateNewKey(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error) {
	if len(params) < 1 || params[0] == "" {
		return "", fmt.Errorf("create_new_key: missing name")
	}
	name := params[0]
	var passphrase string
	if len(params) > 1 {
		passphrase = params[1]
	}

	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	secretHex := hex.EncodeToString(secret[:])

	key, err := c.loader.AddKey(ctx, name, secretHex, passphrase)
	if err != nil {
		return "", fmt.Errorf("persisting new key: %w", err)
	}
	return key.PubKeyHex, nil
}

func handleCreateNewPolicy(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error) {
	if len(params) < 2 {
		return "", fmt.Errorf("create_new_policy: expected [name, rulesJSON, expiresAt?]")
	}
	var rules []store.PolicyRule
	if err := json.Unmarshal([]byte(params[1]), &rules); err != nil {
		return "", fmt.Errorf("create_new_policy: invalid rules json: %w", err)
	}

	var expiresAt *time.Time
	if len(params) > 2 && params[2] != "" {
		t, err := time.Parse(time.RFC3339, params[2])
		if err != nil {
			return "", fmt.Errorf("create_new_policy: invalid expires_at: %w", err)
		}
		expiresAt = &t
	}

	policy, err := c.st.CreatePolicy(ctx, params[0], expiresAt, rules)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(policy)
	return string(out), err
}

func handleCreateNewToken(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error) {
	if len(params) < 3 {
		return "", fmt.Errorf("create_new_token: expected [keyName, clientName, policyId, expiresAt?]")
	}
	policyID, err := uuid.Parse(params[2])
	if err != nil {
		return "", fmt.Errorf("create_new_token: invalid policy id: %w", err)
	}

	var expiresAt *time.Time
	if len(params) > 3 && params[3] != "" {
		t, err := time.Parse(time.RFC3339, params[3])
		if err != nil {
			return "", fmt.Errorf("create_new_token: invalid expires_at: %w", err)
		}
		expiresAt = &t
	}

	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", fmt.Errorf("generating token secret: %w", err)
	}
	secretHex := hex.EncodeToString(secret[:])

	token, err := c.st.CreateToken(ctx, secretHex, params[0], params[1], policyID, fromPubkey, expiresAt)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(token)
	return string(out), err
}

func handleRenameKeyUser(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error) {
	if len(params) < 2 {
		return "", fmt.Errorf("rename_key_user: expected [keyUserId, description]")
	}
	id, err := uuid.Parse(params[0])
	if err != nil {
		return "", fmt.Errorf("rename_key_user: invalid id: %w", err)
	}
	if err := c.st.RenameKeyUser(ctx, id, params[1]); err != nil {
		return "", err
	}
	return "ok", nil
}

func handleRevokeUser(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error) {
	if len(params) < 1 {
		return "", fmt.Errorf("revoke_user: missing key_user id")
	}
	id, err := uuid.Parse(params[0])
	if err != nil {
		return "", fmt.Errorf("revoke_user: invalid id: %w", err)
	}
	if err := c.st.RevokeKeyUser(ctx, id); err != nil {
		return "", err
	}
	return "ok", nil
}

func handleUnlockKey(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error) {
	if len(params) < 1 {
		return "", fmt.Errorf("unlock_key: missing name")
	}
	var passphrase string
	if len(params) > 1 {
		passphrase = params[1]
	}
	key, err := c.loader.UnlockKey(ctx, params[0], passphrase)
	if err != nil {
		return "", err
	}
	return key.PubKeyHex, nil
}

// handleCreateAccount is exempt from the allow-list check in dispatch.
func handleCreateAccount(ctx context.Context, c *Channel, fromPubkey string, params []string) (string, error) {
	if c.provision == nil {
		return "", fmt.Errorf("create_account: provisioning is not configured")
	}
	var username, domain, email string
	if len(params) > 0 {
		username = params[0]
	}
	if len(params) > 1 {
		domain = params[1]
	}
	if len(params) > 2 {
		email = params[2]
	}
	return c.provision.CreateAccount(ctx, fromPubkey, username, domain, email)
}
