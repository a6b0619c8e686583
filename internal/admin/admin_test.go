package admin

import (
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/duskline/bunker/internal/broker"
	"github.com/duskline/bunker/internal/keyring"
)

var testActiveKey = keyring.ActiveKey{
	Name:      "test",
	SecretHex: "67dea2ed018072d675f5415ecfaed7d2597555e202d85b3d65ea4e58d2d9293",
	PubKeyHex: "abc123",
}

func TestDecodeNpub(t *testing.T) {
	const wantHex = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"

	npub, err := nip19.EncodePublicKey(wantHex)
	if err != nil {
		t.Fatalf("EncodePublicKey() error: %v", err)
	}

	hexPub, err := decodeNpub(npub)
	if err != nil {
		t.Fatalf("decodeNpub() error: %v", err)
	}
	if hexPub != wantHex {
		t.Errorf("decodeNpub() = %q, want %q", hexPub, wantHex)
	}
}

func TestDecodeNpub_Invalid(t *testing.T) {
	if _, err := decodeNpub("not-an-npub"); err == nil {
		t.Fatal("expected an error for a malformed npub")
	}
}

func TestConnectionDescriptor(t *testing.T) {
	c := &Channel{
		key:       &testActiveKey,
		relayURLs: []string{"wss://relay.one", "wss://relay.two"},
	}

	got := c.ConnectionDescriptor()
	want := "bunker://" + testActiveKey.PubKeyHex + "?relay=wss://relay.one&relay=wss://relay.two"
	if got != want {
		t.Errorf("ConnectionDescriptor() = %q, want %q", got, want)
	}
}

func TestConnectionDescriptor_NoRelays(t *testing.T) {
	c := &Channel{key: &testActiveKey}
	want := "bunker://" + testActiveKey.PubKeyHex
	if got := c.ConnectionDescriptor(); got != want {
		t.Errorf("ConnectionDescriptor() = %q, want %q", got, want)
	}
}

func TestHeartbeat_TouchAndAge(t *testing.T) {
	c := &Channel{}
	before := time.Now()
	c.touchHeartbeat()
	after := time.Now()

	age := c.heartbeatAge()
	if age.Before(before) || age.After(after) {
		t.Errorf("heartbeatAge() = %v, want between %v and %v", age, before, after)
	}
}

func TestDeliverVerdict(t *testing.T) {
	c := &Channel{waiters: make(map[string]chan broker.AdminVerdict)}
	ch := make(chan broker.AdminVerdict, 1)
	c.waiters["req-1"] = ch

	c.deliverVerdict(envelope{ID: "req-1", Result: string(broker.VerdictAllow)})

	select {
	case v := <-ch:
		if v != broker.VerdictAllow {
			t.Errorf("delivered verdict = %q, want %q", v, broker.VerdictAllow)
		}
	default:
		t.Fatal("expected a verdict to be delivered")
	}

	if _, ok := c.waiters["req-1"]; ok {
		t.Error("waiter should be removed after delivery")
	}
}

func TestDeliverVerdict_UnknownID(t *testing.T) {
	c := &Channel{waiters: make(map[string]chan broker.AdminVerdict)}
	// Should not panic on an id with no registered waiter.
	c.deliverVerdict(envelope{ID: "no-such-request", Result: string(broker.VerdictDeny)})
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	const skA = "67dea2ed018072d675f5415ecfaed7d2597555e202d85b3d65ea4e58d2d9293"
	const skB = "5ee1c8000ab28edd64d74a7d951bcc3b2853728e1e41084877d9bbb25f82f71"

	pubA, err := nostr.GetPublicKey(skA)
	if err != nil {
		t.Fatalf("GetPublicKey(skA) error: %v", err)
	}
	pubB, err := nostr.GetPublicKey(skB)
	if err != nil {
		t.Fatalf("GetPublicKey(skB) error: %v", err)
	}

	const plaintext = `{"id":"1","method":"ping"}`

	content, err := encryptTo([]byte(plaintext), pubB, skA)
	if err != nil {
		t.Fatalf("encryptTo() error: %v", err)
	}

	got, err := decryptFrom(content, pubA, skB)
	if err != nil {
		t.Fatalf("decryptFrom() error: %v", err)
	}
	if got != plaintext {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}
