// Package signer implements the Signer Core (C4): one logical NIP-46
// endpoint per ActiveKey, subscribing on the configured relays, decrypting
// and dispatching inbound requests, and encrypting/publishing replies.
// Event construction and signing are grounded on nbd-wtf/go-nostr (and its
// nip04/nip44 subpackages); the relay read/subscribe/publish loop is
// grounded on gorilla/websocket per internal/relay.
package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/duskline/bunker/internal/acl"
	"github.com/duskline/bunker/internal/keyring"
	"github.com/duskline/bunker/internal/relay"
	"github.com/duskline/bunker/internal/store"
)

// Authorizer routes "unknown" ACL decisions to an admin, per C5. notifier is
// passed through so the broker can send the auth_url sentinel reply without
// needing to know which relay connections the calling endpoint owns.
type Authorizer interface {
	RequestAuthorization(ctx context.Context, notifier Notifier, keyName, requestID, clientPubkey, method string, params []string) ([]string, error)
}

// Notifier sends the auth_url sentinel response to a waiting client.
type Notifier interface {
	SendAuthURL(ctx context.Context, clientPubkey, requestID, url string) error
}

// Endpoint is the NIP-46 server bound to a single ActiveKey.
type Endpoint struct {
	KeyName   string
	key       *keyring.ActiveKey
	relayURLs []string
	st        *store.Store
	authz     Authorizer
	logger    *slog.Logger

	mu    sync.Mutex
	conns []*relay.Conn
}

// New creates a Signer Core endpoint for key, listening on relayURLs.
func New(key *keyring.ActiveKey, relayURLs []string, st *store.Store, authz Authorizer, logger *slog.Logger) *Endpoint {
	return &Endpoint{
		KeyName:   key.Name,
		key:       key,
		relayURLs: relayURLs,
		st:        st,
		authz:     authz,
		logger:    logger.With("key_name", key.Name, "component", "signer"),
	}
}

// Run listens on every configured relay until ctx is cancelled. Each relay
// is its own reconnect-on-error goroutine; inbound events are merged onto a
// shared channel and processed one at a time, preserving arrival order per
// client within this key's endpoint (spec §5).
func (e *Endpoint) Run(ctx context.Context) error {
	events := make(chan *nostr.Event, 64)

	var wg sync.WaitGroup
	for _, url := range e.relayURLs {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			e.listenRelay(ctx, url, events)
		}(url)
	}

	go func() {
		wg.Wait()
		close(events)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("signer: all relays disconnected for key %s", e.KeyName)
			}
			e.handleEvent(ctx, ev)
		}
	}
}

func (e *Endpoint) listenRelay(ctx context.Context, url string, out chan<- *nostr.Event) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := relay.Dial(ctx, url)
		if err != nil {
			e.logger.Warn("relay dial failed, retrying", "relay", url, "error", err)
			sleep(ctx, 5*time.Second)
			continue
		}

		e.mu.Lock()
		e.conns = append(e.conns, conn)
		e.mu.Unlock()

		subID := "bunker-" + e.KeyName
		if err := conn.Subscribe(subID, e.key.PubKeyHex, time.Now().Unix()-10); err != nil {
			e.logger.Warn("relay subscribe failed", "relay", url, "error", err)
			conn.Close()
			sleep(ctx, 5*time.Second)
			continue
		}

		for {
			ev, err := conn.ReadEvent(0)
			if err != nil {
				e.logger.Warn("relay read failed, reconnecting", "relay", url, "error", err)
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

// handleEvent decrypts, parses, authorizes, executes, and replies to one
// inbound kind-24133 event. Decrypt or envelope-parse failures are dropped
// silently per §4.4's failure semantics (no structure leaked to
// unauthenticated origins).
func (e *Endpoint) handleEvent(ctx context.Context, ev *nostr.Event) {
	clientPub := ev.PubKey

	plaintext, err := decryptEnvelope(ev.Content, clientPub, e.key.SecretHex)
	if err != nil {
		e.logger.Debug("dropping event: decrypt failed", "error", err)
		return
	}

	req, err := parseRequest(plaintext)
	if err != nil {
		e.logger.Debug("dropping event: envelope parse failed", "error", err)
		return
	}

	resp := e.dispatch(ctx, clientPub, req)
	e.reply(ctx, clientPub, resp)
}

func (e *Endpoint) dispatch(ctx context.Context, clientPub string, req *Request) Response {
	handler, ok := methods[req.Method]
	if !ok {
		return Response{ID: req.ID, Result: "error", Error: "unknown method"}
	}

	result, err := handler(ctx, e, clientPub, req)
	if err != nil {
		e.logger.Info("method execution failed", "method", req.Method, "error", err)
		return Response{ID: req.ID, Result: "error", Error: err.Error()}
	}
	return Response{ID: req.ID, Result: result}
}

// authorize is the per-spec authorization callback: consult C3, and on
// "unknown" delegate to C5.
func (e *Endpoint) authorize(ctx context.Context, clientPub, requestID, method string, params []string) ([]string, bool, error) {
	paramPrimary := ""
	if len(params) > 0 {
		paramPrimary = params[0]
	}

	decision, err := acl.Evaluate(ctx, e.st, e.KeyName, clientPub, method, paramPrimary)
	if err != nil {
		return nil, false, err
	}

	switch decision {
	case acl.Allow:
		return params, true, nil
	case acl.Deny:
		return nil, false, nil
	default:
		approved, err := e.authz.RequestAuthorization(ctx, e, e.KeyName, requestID, clientPub, method, params)
		if err != nil {
			return nil, false, nil
		}
		return approved, true, nil
	}
}

// SendAuthURL implements Notifier: it replies to the client
// immediately with the auth_url sentinel, before the broker's wait begins.
func (e *Endpoint) SendAuthURL(ctx context.Context, clientPubkey, requestID, url string) error {
	e.reply(ctx, clientPubkey, Response{ID: requestID, Result: "auth_url", Error: url})
	return nil
}

func (e *Endpoint) reply(ctx context.Context, clientPub string, resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		e.logger.Error("marshaling response", "error", err)
		return
	}

	encrypted, err := encryptEnvelope(string(payload), clientPub, e.key.SecretHex)
	if err != nil {
		e.logger.Error("encrypting response", "error", err)
		return
	}

	reply := &nostr.Event{
		PubKey:    e.key.PubKeyHex,
		CreatedAt: nostr.Now(),
		Kind:      24133,
		Tags:      nostr.Tags{{"p", clientPub}},
		Content:   encrypted,
	}
	if err := reply.Sign(e.key.SecretHex); err != nil {
		e.logger.Error("signing response", "error", err)
		return
	}

	e.mu.Lock()
	conns := append([]*relay.Conn(nil), e.conns...)
	e.mu.Unlock()

	for _, c := range conns {
		if err := c.Publish(reply); err != nil {
			e.logger.Debug("publish failed on one relay", "error", err)
		}
	}
}
