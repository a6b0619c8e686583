package signer

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func TestParseRequest(t *testing.T) {
	req, err := parseRequest(`{"id":"1","method":"connect","params":["abc"]}`)
	if err != nil {
		t.Fatalf("parseRequest() error: %v", err)
	}
	if req.ID != "1" || req.Method != "connect" || len(req.Params) != 1 || req.Params[0] != "abc" {
		t.Errorf("parseRequest() = %+v, unexpected fields", req)
	}
}

func TestParseRequest_MissingMethod(t *testing.T) {
	if _, err := parseRequest(`{"id":"1","params":[]}`); err == nil {
		t.Fatal("expected an error for a request with no method")
	}
}

func TestParseRequest_MalformedJSON(t *testing.T) {
	if _, err := parseRequest(`not-json`); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestEncryptDecryptEnvelopeRoundTrip(t *testing.T) {
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

	const plaintext = `{"id":"1","method":"connect","params":["abc"]}`

	content, err := encryptEnvelope(plaintext, pubB, skA)
	if err != nil {
		t.Fatalf("encryptEnvelope() error: %v", err)
	}

	got, err := decryptEnvelope(content, pubA, skB)
	if err != nil {
		t.Fatalf("decryptEnvelope() error: %v", err)
	}
	if got != plaintext {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}
