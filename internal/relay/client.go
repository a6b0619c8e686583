// Package relay is the shared NIP-46 transport used by the Signer Core (C4)
// and the Admin Channel (C6): a thin gorilla/websocket wrapper sending the
// relay wire protocol's raw JSON arrays directly, grounded on the pack's
// vcavallo-nostr-hypermedia NIP-46 client (that file is a client; this is
// the mirrored server side of the same subscribe/publish exchange).
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
)

// Conn is one websocket connection to a relay.
type Conn struct {
	url string
	ws  *websocket.Conn
}

// Dial connects to a relay's websocket endpoint.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("relay: dialing %s: %w", url, err)
	}
	return &Conn{url: url, ws: ws}, nil
}

// Close closes the underlying websocket.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// Subscribe sends a REQ frame for kind-24133 events p-tagged to pubkeyHex.
func (c *Conn) Subscribe(subID, pubkeyHex string, sinceUnix int64) error {
	filter := map[string]any{
		"kinds": []int{24133},
		"#p":    []string{pubkeyHex},
		"since": sinceUnix,
	}
	return c.ws.WriteJSON([]any{"REQ", subID, filter})
}

// Publish sends an EVENT frame.
func (c *Conn) Publish(event *nostr.Event) error {
	return c.ws.WriteJSON([]any{"EVENT", event})
}

// ReadEvent blocks for the next relay-delivered EVENT frame, skipping
// EOSE/NOTICE/OK control frames. deadline of zero disables the read
// deadline.
func (c *Conn) ReadEvent(deadline time.Duration) (*nostr.Event, error) {
	for {
		if deadline > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(deadline))
		}

		var msg []json.RawMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("relay: read: %w", err)
		}
		if len(msg) < 1 {
			continue
		}

		var kind string
		if err := json.Unmarshal(msg[0], &kind); err != nil {
			continue
		}

		switch kind {
		case "EVENT":
			if len(msg) < 3 {
				continue
			}
			var ev nostr.Event
			if err := json.Unmarshal(msg[2], &ev); err != nil {
				continue
			}
			return &ev, nil
		case "EOSE", "NOTICE", "OK":
			continue
		default:
			continue
		}
	}
}
