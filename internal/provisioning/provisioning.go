// Package provisioning implements the Provisioning component (C8):
// create_account is the one RPC that bypasses the admin allow-list, and
// runs in two phases either side of the admin's web-form approval — a
// PendingRequest/auth_url phase handled synchronously here, and a
// post-approval phase (directory write, secret mint, vault persistence,
// keyring load, requester grants) run by a background watcher. The Account
// row is created by the HTTP register handler, not here.
package provisioning

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duskline/bunker/internal/acl"
	"github.com/duskline/bunker/internal/keyring"
	"github.com/duskline/bunker/internal/store"
	"github.com/duskline/bunker/pkg/slack"
)

var reservedNames = map[string]bool{
	"admin": true, "root": true, "_": true, "administrator": true, "__": true,
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// KeyLoader persists a plain-text secret to the vault and loads it into the
// running keyring. Implemented by the daemon wiring in internal/app.
type KeyLoader interface {
	AddPlainKey(ctx context.Context, name, secretHex string) (*keyring.ActiveKey, error)
}

// directoryEntry is one row of a domain's public username directory.
type directoryEntry struct {
	Pubkey string   `json:"pubkey"`
	Relays []string `json:"relays"`
}

// Provisioner is the C8 component.
type Provisioner struct {
	st           *store.Store
	loader       KeyLoader
	domains      []string
	relays       []string
	directoryDir string
	baseURL      string
	notifier     *slack.Notifier
	logger       *slog.Logger

	mu      sync.Mutex
	handled map[string]bool
}

// Config bundles Provisioner construction parameters.
type Config struct {
	Store        *store.Store
	Loader       KeyLoader
	Domains      []string
	Relays       []string
	DirectoryDir string
	BaseURL      string
	Notifier     *slack.Notifier
	Logger       *slog.Logger
}

// New constructs a Provisioner.
func New(cfg Config) *Provisioner {
	return &Provisioner{
		st:           cfg.Store,
		loader:       cfg.Loader,
		domains:      cfg.Domains,
		relays:       cfg.Relays,
		directoryDir: cfg.DirectoryDir,
		baseURL:      cfg.BaseURL,
		notifier:     cfg.Notifier,
		logger:       cfg.Logger.With("component", "provisioning"),
		handled:      make(map[string]bool),
	}
}

// CreateAccount validates the request, persists a PendingRequest, spawns the
// post-approval watcher, and returns the auth_url the caller should present,
// per §4.8 steps 1-3.
func (p *Provisioner) CreateAccount(ctx context.Context, requesterPubkey, username, domain, email string) (string, error) {
	domain, err := p.selectDomain(domain)
	if err != nil {
		return "", err
	}

	if username == "" {
		username, err = randomBase36(10)
		if err != nil {
			return "", fmt.Errorf("generating username: %w", err)
		}
	}
	if reservedNames[strings.ToLower(username)] {
		return "", fmt.Errorf("username %q is reserved", username)
	}

	requestID := uuid.New().String()
	params, _ := json.Marshal([]string{username, domain, email})
	if _, err := p.st.CreatePendingRequest(ctx, requestID, "", requesterPubkey, "create_account", string(params)); err != nil {
		return "", fmt.Errorf("persisting pending request: %w", err)
	}

	go p.awaitApproval(context.Background(), requestID, requesterPubkey)

	return fmt.Sprintf("%s/requests/%s", strings.TrimRight(p.baseURL, "/"), requestID), nil
}

func (p *Provisioner) selectDomain(want string) (string, error) {
	if len(p.domains) == 0 {
		return "", fmt.Errorf("no domains configured")
	}
	if want == "" {
		return p.domains[0], nil
	}
	for _, d := range p.domains {
		if d == want {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown domain %q", want)
}

func randomBase36(n int) (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(base36Alphabet[idx.Int64()])
	}
	return sb.String(), nil
}

// awaitApproval polls the PendingRequest until the admin decides, then runs
// the post-approval phase (§4.8 step 4). Tracking completion in-memory is
// safe because C8 runs as a single daemon-owned instance.
func (p *Provisioner) awaitApproval(ctx context.Context, requestID, requesterPubkey string) {
	deadline := time.Now().Add(90 * time.Second)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if time.Now().After(deadline) {
			return
		}
		pr, err := p.st.GetPendingRequest(ctx, requestID)
		if err != nil || pr.Allowed == nil {
			continue
		}
		if !*pr.Allowed {
			return
		}

		p.mu.Lock()
		if p.handled[requestID] {
			p.mu.Unlock()
			return
		}
		p.handled[requestID] = true
		p.mu.Unlock()

		var fields []string
		if err := json.Unmarshal([]byte(pr.Params), &fields); err != nil || len(fields) < 3 {
			p.logger.Error("create_account: malformed approved params", "request_id", requestID)
			return
		}
		if err := p.finish(ctx, requesterPubkey, fields[0], fields[1], fields[2]); err != nil {
			p.logger.Error("create_account: post-approval phase failed", "request_id", requestID, "error", err)
		}
		return
	}
}

// finish runs §4.8 step 4: directory write, secret mint, vault persistence,
// keyring load, and granting the requester full control.
func (p *Provisioner) finish(ctx context.Context, requesterPubkey, username, domain, email string) error {
	free, err := p.isNameFree(domain, username)
	if err != nil {
		return fmt.Errorf("checking directory: %w", err)
	}
	if !free {
		return fmt.Errorf("username %q is no longer free in %s", username, domain)
	}

	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return fmt.Errorf("generating secret: %w", err)
	}
	secretHex := hex.EncodeToString(secret[:])

	keyName := fmt.Sprintf("%s@%s", username, domain)
	key, err := p.loader.AddPlainKey(ctx, keyName, secretHex)
	if err != nil {
		return fmt.Errorf("persisting new key: %w", err)
	}

	if err := p.appendDirectoryEntry(domain, username, key.PubKeyHex); err != nil {
		return fmt.Errorf("appending directory entry: %w", err)
	}

	// The Account row (password-holding) is created by the HTTP register
	// handler once the admin's web form supplies a password, not here; this
	// phase only has to make the key exist and be loaded.

	keyUser, err := p.st.UpsertKeyUser(ctx, keyName, requesterPubkey, "provisioning requester")
	if err != nil {
		return fmt.Errorf("granting requester access: %w", err)
	}
	for _, method := range []string{"connect", "nip04_encrypt", "nip04_decrypt", "nip44_encrypt", "nip44_decrypt"} {
		if err := acl.PermitAllRequests(ctx, p.st, keyUser.ID, method, ""); err != nil {
			return fmt.Errorf("granting %s: %w", method, err)
		}
	}
	if err := acl.PermitAllRequests(ctx, p.st, keyUser.ID, "sign_event", "all"); err != nil {
		return fmt.Errorf("granting sign_event: %w", err)
	}

	p.logger.Info("account provisioned", "key_name", keyName, "pubkey", key.PubKeyHex)
	if p.notifier != nil {
		if err := p.notifier.NotifyProvisioningCompleted(ctx, slack.ProvisioningInfo{
			KeyName:   keyName,
			PubKeyHex: key.PubKeyHex,
		}); err != nil {
			p.logger.Warn("slack notify failed", "error", err)
		}
	}
	return nil
}

func (p *Provisioner) directoryPath(domain string) string {
	return filepath.Join(p.directoryDir, domain+".json")
}

func (p *Provisioner) loadDirectory(domain string) (map[string]directoryEntry, error) {
	data, err := os.ReadFile(p.directoryPath(domain))
	if os.IsNotExist(err) {
		return map[string]directoryEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	var dir map[string]directoryEntry
	if err := json.Unmarshal(data, &dir); err != nil {
		return nil, err
	}
	return dir, nil
}

func (p *Provisioner) isNameFree(domain, username string) (bool, error) {
	dir, err := p.loadDirectory(domain)
	if err != nil {
		return false, err
	}
	_, taken := dir[username]
	return !taken, nil
}

func (p *Provisioner) appendDirectoryEntry(domain, username, pubkeyHex string) error {
	dir, err := p.loadDirectory(domain)
	if err != nil {
		return err
	}
	dir[username] = directoryEntry{Pubkey: pubkeyHex, Relays: p.relays}

	data, err := json.MarshalIndent(dir, "", "  ")
	if err != nil {
		return err
	}

	tmp := p.directoryPath(domain) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.directoryPath(domain))
}
