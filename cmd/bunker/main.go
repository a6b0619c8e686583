package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"golang.org/x/crypto/bcrypt"

	"github.com/duskline/bunker/internal/app"
	"github.com/duskline/bunker/internal/config"
	"github.com/duskline/bunker/internal/platform"
	"github.com/duskline/bunker/internal/store"
	"github.com/duskline/bunker/internal/vault"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "setup":
		err = runSetup(os.Args[2:])
	case "add":
		err = runAdd(os.Args[2:])
	case "start":
		err = runStart(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bunker <setup|add|start> [flags]")
}

// runSetup creates or updates the vault document: seeds the admin allow
// list and the bunker's own AdminKey (generated once, per §48's "Process-
// local identity ... Generated once, stored in the config"), and installs
// the single local-administrator dashboard credential (A3).
func runSetup(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	configPath := fs.String("c", "bunker.json", "vault/config file path")
	baseURL := fs.String("base-url", "http://localhost:8080", "public base URL for auth_url links")
	relays := fs.String("relays", "wss://relay.damus.io,wss://nos.lol", "comma-separated relay URLs for user keys")
	adminRelays := fs.String("admin-relays", "", "comma-separated relay URLs for the admin channel (defaults to -relays)")
	dashboardUser := fs.String("dashboard-username", "admin", "dashboard local-administrator username")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	doc, err := loadOrInitDocument(*configPath)
	if err != nil {
		return err
	}

	doc.BaseURL = *baseURL
	doc.Nostr.Relays = splitCSV(*relays)
	if *adminRelays != "" {
		doc.Admin.AdminRelays = splitCSV(*adminRelays)
	} else if len(doc.Admin.AdminRelays) == 0 {
		doc.Admin.AdminRelays = doc.Nostr.Relays
	}

	for _, npub := range cfg.AdminNpubs {
		doc.Admin.Npubs = appendUnique(doc.Admin.Npubs, npub)
	}

	if doc.Admin.Secret == "" {
		secret, pub, err := generateKeyPair()
		if err != nil {
			return fmt.Errorf("generating admin identity: %w", err)
		}
		doc.Admin.Secret = secret
		doc.Admin.Key = pub
		fmt.Printf("generated admin identity: %s\n", pub)
	}

	if err := vault.Save(*configPath, doc); err != nil {
		return fmt.Errorf("saving vault: %w", err)
	}
	fmt.Printf("vault written to %s\n", *configPath)

	password, err := promptPassword("dashboard admin password: ")
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if password == "" {
		fmt.Println("no password entered, skipping dashboard admin creation")
		return nil
	}

	ctx := context.Background()
	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	st := store.New(db)
	if _, err := st.CreateDashboardAdmin(ctx, *dashboardUser, string(hash)); err != nil {
		return fmt.Errorf("creating dashboard admin: %w", err)
	}
	fmt.Printf("dashboard admin %q created\n", *dashboardUser)
	return nil
}

// runAdd mints or imports a user key into the vault, encrypting it at rest
// if a passphrase is supplied, mirroring §4.1's directory/vault split.
func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("c", "bunker.json", "vault/config file path")
	name := fs.String("name", "", "key name, e.g. alice@example.com (required)")
	nsec := fs.String("nsec", "", "import an existing nsec/hex secret instead of generating one")
	passphrase := fs.String("passphrase", "", "encrypt the key at rest with this passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}

	doc, err := vault.Load(*configPath)
	if err != nil {
		return err
	}

	secretHex := *nsec
	if secretHex == "" {
		secretHex, _, err = generateKeyPair()
		if err != nil {
			return fmt.Errorf("generating key: %w", err)
		}
	} else if _, err := hex.DecodeString(secretHex); err != nil || len(secretHex) != 64 {
		prefix, data, derr := nip19.Decode(secretHex)
		decoded, ok := data.(string)
		if derr != nil || prefix != "nsec" || !ok {
			return fmt.Errorf("-nsec must be an nsec or a 64-char hex secret key")
		}
		secretHex = decoded
	}

	var entry vault.StoredKey
	if *passphrase != "" {
		entry, err = vault.EncryptSecret(secretHex, *passphrase)
		if err != nil {
			return fmt.Errorf("encrypting key: %w", err)
		}
	} else {
		entry = vault.StoredKey{Key: secretHex}
	}

	if doc.Keys == nil {
		doc.Keys = make(map[string]vault.StoredKey)
	}
	doc.Keys[*name] = entry
	if err := vault.Save(*configPath, doc); err != nil {
		return fmt.Errorf("saving vault: %w", err)
	}

	pub, err := nostr.GetPublicKey(secretHex)
	if err != nil {
		return fmt.Errorf("deriving public key: %w", err)
	}
	fmt.Printf("key %q added, pubkey %s\n", *name, pub)
	return nil
}

// runStart launches the daemon: Signer Core endpoints, Admin Channel,
// Provisioning watcher, and HTTP Surface. Equivalent to the teacher's
// entry point, minus the api/worker mode split this system doesn't have.
func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("c", "", "vault/config file path (overrides BUNKER_CONFIG)")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *configPath != "" {
		cfg.VaultPath = *configPath
	}
	if *verbose {
		cfg.Verbose = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
	return nil
}

func loadOrInitDocument(path string) (*vault.Document, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &vault.Document{Keys: make(map[string]vault.StoredKey)}, nil
	}
	return vault.Load(path)
}

func generateKeyPair() (secretHex, pubHex string, err error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", "", err
	}
	secretHex = hex.EncodeToString(buf[:])
	pubHex, err = nostr.GetPublicKey(secretHex)
	return secretHex, pubHex, err
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
