// Package admin implements the Admin Channel (C6): a second NIP-46-style
// endpoint bound to the AdminKey, exposing management RPCs gated by an
// admin pubkey allow-list, and doubling as the relay-admin-path transport
// for the Authorization Broker's acl forwarding. Transport is shared with
// the Signer Core via internal/relay; npub decoding reuses go-nostr's own
// nip19 subpackage, already part of the module's dependency graph.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/duskline/bunker/internal/broker"
	"github.com/duskline/bunker/internal/keyring"
	"github.com/duskline/bunker/internal/relay"
	"github.com/duskline/bunker/internal/store"
	"github.com/duskline/bunker/pkg/slack"
)

const (
	selfPingInterval = 20 * time.Second
	heartbeatTimeout = 50 * time.Second
)

// envelope mirrors signer.Request/Response as a local type rather than
// importing those from internal/signer.
type envelope struct {
	ID     string   `json:"id"`
	Method string   `json:"method,omitempty"`
	Params []string `json:"params,omitempty"`
	Result string   `json:"result,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// KeyLoader lets the admin channel persist a new key to the vault and load
// it into the running keyring. Implemented by the daemon wiring in
// internal/app.
type KeyLoader interface {
	AddKey(ctx context.Context, name, secretHex, passphrase string) (*keyring.ActiveKey, error)
	UnlockKey(ctx context.Context, name, passphrase string) (*keyring.ActiveKey, error)
}

// Provisioner executes create_account (C8), the one RPC that bypasses the
// admin allow-list.
type Provisioner interface {
	CreateAccount(ctx context.Context, requesterPubkey, username, domain, email string) (string, error)
}

// Channel is the C6 Admin Channel.
type Channel struct {
	key       *keyring.ActiveKey
	relayURLs []string
	allowlist map[string]bool // hex pubkeys
	st        *store.Store
	keys      *keyring.Keyring
	loader    KeyLoader
	provision Provisioner
	descPath  string
	adminDMs  []string // admin hex pubkeys to DM with the connection descriptor
	notifier  *slack.Notifier
	logger    *slog.Logger

	mu        sync.Mutex
	conns     []*relay.Conn
	waiters   map[string]chan broker.AdminVerdict
	lastPing  time.Time
	lastPingM sync.Mutex
}

// Config bundles Channel construction parameters.
type Config struct {
	Key                *keyring.ActiveKey
	RelayURLs          []string
	AdminNpubs         []string
	Store              *store.Store
	Keyring            *keyring.Keyring
	Loader             KeyLoader
	Provisioner        Provisioner
	DescriptorPath     string
	NotifyAdminsOnBoot bool
	Notifier           *slack.Notifier
	Logger             *slog.Logger
}

// New constructs the Admin Channel, decoding every configured npub into its
// 32-byte hex pubkey for the allow-list.
func New(cfg Config) (*Channel, error) {
	allow := make(map[string]bool, len(cfg.AdminNpubs))
	var dms []string
	for _, npub := range cfg.AdminNpubs {
		hexPub, err := decodeNpub(npub)
		if err != nil {
			return nil, fmt.Errorf("admin: decoding npub %q: %w", npub, err)
		}
		allow[hexPub] = true
		if cfg.NotifyAdminsOnBoot {
			dms = append(dms, hexPub)
		}
	}

	return &Channel{
		key:       cfg.Key,
		relayURLs: cfg.RelayURLs,
		allowlist: allow,
		st:        cfg.Store,
		keys:      cfg.Keyring,
		loader:    cfg.Loader,
		provision: cfg.Provisioner,
		descPath:  cfg.DescriptorPath,
		adminDMs:  dms,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger.With("component", "admin"),
		waiters:   make(map[string]chan broker.AdminVerdict),
	}, nil
}

func decodeNpub(npub string) (string, error) {
	prefix, data, err := nip19.Decode(npub)
	if err != nil {
		return "", err
	}
	hexPub, ok := data.(string)
	if !ok || prefix != "npub" {
		return "", fmt.Errorf("not an npub")
	}
	return hexPub, nil
}

// ConnectionDescriptor builds the bunker:// URI for this channel.
func (c *Channel) ConnectionDescriptor() string {
	uri := fmt.Sprintf("bunker://%s", c.key.PubKeyHex)
	for i, r := range c.relayURLs {
		sep := "?"
		if i > 0 {
			sep = "&"
		}
		uri += sep + "relay=" + r
	}
	return uri
}

// Run dials every admin relay, writes the connection descriptor, DMs
// whitelisted admins if configured, and serves the event loop plus
// heartbeat until ctx is cancelled.
func (c *Channel) Run(ctx context.Context) error {
	desc := c.ConnectionDescriptor()
	if c.descPath != "" {
		if err := os.WriteFile(c.descPath, []byte(desc+"\n"), 0o600); err != nil {
			c.logger.Error("writing connection descriptor", "error", err)
		}
	}
	c.logger.Info("admin channel ready", "descriptor", desc)

	events := make(chan *nostr.Event, 64)
	var wg sync.WaitGroup
	for _, url := range c.relayURLs {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			c.listenRelay(ctx, url, events)
		}(url)
	}
	go func() { wg.Wait(); close(events) }()

	if len(c.adminDMs) > 0 {
		c.sendBootDMs(ctx)
	}

	c.touchHeartbeat()
	heartbeatTicker := time.NewTicker(selfPingInterval)
	defer heartbeatTicker.Stop()
	watchdog := time.NewTicker(5 * time.Second)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("admin: all relays disconnected")
			}
			c.handleEvent(ctx, ev)
		case <-heartbeatTicker.C:
			c.publishSelfPing(ctx)
		case <-watchdog.C:
			if silence := time.Since(c.heartbeatAge()); silence > heartbeatTimeout {
				c.logger.Error("admin heartbeat lost, exiting", "silence", silence)
				if c.notifier != nil {
					_ = c.notifier.NotifyHeartbeatLost(context.Background(), slack.HeartbeatInfo{
						KeyName: c.key.PubKeyHex,
						Relay:   strings.Join(c.relayURLs, ","),
						Since:   silence.String(),
					})
				}
				os.Exit(1)
			}
		}
	}
}

func (c *Channel) heartbeatAge() time.Time {
	c.lastPingM.Lock()
	defer c.lastPingM.Unlock()
	return c.lastPing
}

func (c *Channel) touchHeartbeat() {
	c.lastPingM.Lock()
	c.lastPing = time.Now()
	c.lastPingM.Unlock()
}

func (c *Channel) listenRelay(ctx context.Context, url string, out chan<- *nostr.Event) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := relay.Dial(ctx, url)
		if err != nil {
			c.logger.Warn("admin relay dial failed", "relay", url, "error", err)
			sleep(ctx, 5*time.Second)
			continue
		}

		c.mu.Lock()
		c.conns = append(c.conns, conn)
		c.mu.Unlock()

		if err := conn.Subscribe("bunker-admin", c.key.PubKeyHex, time.Now().Unix()-10); err != nil {
			conn.Close()
			sleep(ctx, 5*time.Second)
			continue
		}

		for {
			ev, err := conn.ReadEvent(0)
			if err != nil {
				break
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
		conn.Close()
		sleep(ctx, 2*time.Second)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Channel) publish(ev *nostr.Event) {
	c.mu.Lock()
	conns := append([]*relay.Conn(nil), c.conns...)
	c.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Publish(ev); err != nil {
			c.logger.Debug("admin publish failed on one relay", "error", err)
		}
	}
}

// publishSelfPing sends a ping p-tagged to the channel's own pubkey, the
// liveness signal the watchdog above waits for.
func (c *Channel) publishSelfPing(ctx context.Context) {
	payload, _ := json.Marshal(envelope{ID: "self-ping", Method: "ping"})
	content, err := encryptTo(payload, c.key.PubKeyHex, c.key.SecretHex)
	if err != nil {
		c.logger.Error("encrypting self-ping", "error", err)
		return
	}
	ev := &nostr.Event{
		PubKey:    c.key.PubKeyHex,
		CreatedAt: nostr.Now(),
		Kind:      24133,
		Tags:      nostr.Tags{{"p", c.key.PubKeyHex}},
		Content:   content,
	}
	if err := ev.Sign(c.key.SecretHex); err != nil {
		c.logger.Error("signing self-ping", "error", err)
		return
	}
	c.publish(ev)
}

func (c *Channel) sendBootDMs(ctx context.Context) {
	desc := c.ConnectionDescriptor()
	for _, admin := range c.adminDMs {
		payload, _ := json.Marshal(envelope{ID: "boot", Method: "connection", Params: []string{desc}})
		content, err := encryptTo(payload, admin, c.key.SecretHex)
		if err != nil {
			continue
		}
		ev := &nostr.Event{
			PubKey:    c.key.PubKeyHex,
			CreatedAt: nostr.Now(),
			Kind:      24133,
			Tags:      nostr.Tags{{"p", admin}},
			Content:   content,
		}
		if err := ev.Sign(c.key.SecretHex); err == nil {
			c.publish(ev)
		}
	}
}

func (c *Channel) handleEvent(ctx context.Context, ev *nostr.Event) {
	if ev.PubKey == c.key.PubKeyHex {
		c.touchHeartbeat()
		return
	}

	plaintext, err := decryptFrom(ev.Content, ev.PubKey, c.key.SecretHex)
	if err != nil {
		return
	}

	var env envelope
	if err := json.Unmarshal([]byte(plaintext), &env); err != nil {
		return
	}

	if env.Method == "" {
		c.deliverVerdict(env)
		return
	}

	resp := c.dispatch(ctx, ev.PubKey, env)
	c.reply(ev.PubKey, resp)
}

func (c *Channel) deliverVerdict(env envelope) {
	c.mu.Lock()
	ch, ok := c.waiters[env.ID]
	if ok {
		delete(c.waiters, env.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- broker.AdminVerdict(env.Result):
	default:
	}
}

func (c *Channel) reply(to string, resp envelope) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	content, err := encryptTo(payload, to, c.key.SecretHex)
	if err != nil {
		return
	}
	ev := &nostr.Event{
		PubKey:    c.key.PubKeyHex,
		CreatedAt: nostr.Now(),
		Kind:      24133,
		Tags:      nostr.Tags{{"p", to}},
		Content:   content,
	}
	if err := ev.Sign(c.key.SecretHex); err != nil {
		return
	}
	c.publish(ev)
}

// ForwardACL implements broker.AdminForwarder: it publishes an acl request
// to every whitelisted admin and returns whichever replies first.
func (c *Channel) ForwardACL(ctx context.Context, keyName, remotePubkey, method, param, description string) (broker.AdminVerdict, error) {
	if len(c.allowlist) == 0 {
		return broker.VerdictDeny, fmt.Errorf("admin: no admins configured")
	}

	reqID := fmt.Sprintf("acl-%d", time.Now().UnixNano())
	ch := make(chan broker.AdminVerdict, 1)
	c.mu.Lock()
	c.waiters[reqID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, reqID)
		c.mu.Unlock()
	}()

	params, _ := json.Marshal([]string{keyName, remotePubkey, method, param, description})
	for admin := range c.allowlist {
		payload, _ := json.Marshal(envelope{ID: reqID, Method: "acl", Params: []string{string(params)}})
		content, err := encryptTo(payload, admin, c.key.SecretHex)
		if err != nil {
			continue
		}
		ev := &nostr.Event{
			PubKey:    c.key.PubKeyHex,
			CreatedAt: nostr.Now(),
			Kind:      24133,
			Tags:      nostr.Tags{{"p", admin}},
			Content:   content,
		}
		if err := ev.Sign(c.key.SecretHex); err == nil {
			c.publish(ev)
		}
	}

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return broker.VerdictDeny, ctx.Err()
	}
}
