package slack

import "testing"

func TestPendingRequestBlocks(t *testing.T) {
	blocks := PendingRequestBlocks(PendingRequestInfo{
		RequestID:  "req-1",
		KeyName:    "alice@bunker.test",
		Method:     "sign_event",
		AppName:    "Damus",
		ApproveURL: "https://bunker.test/requests/req-1",
	})
	if len(blocks) < 2 {
		t.Fatalf("got %d blocks, want at least header + section", len(blocks))
	}
}

func TestPendingRequestBlocks_NoApproveURL(t *testing.T) {
	blocks := PendingRequestBlocks(PendingRequestInfo{
		KeyName: "alice@bunker.test",
		Method:  "connect",
	})
	// No action block without an approve URL.
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2 (header + section) with no approve URL", len(blocks))
	}
}

func TestProvisioningCompletedBlocks(t *testing.T) {
	blocks := ProvisioningCompletedBlocks(ProvisioningInfo{
		KeyName:   "bob@bunker.test",
		PubKeyHex: "abc123",
	})
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
}

func TestHeartbeatLostBlocks(t *testing.T) {
	blocks := HeartbeatLostBlocks(HeartbeatInfo{
		KeyName: "carol@bunker.test",
		Relay:   "wss://relay.test",
		Since:   "2m0s",
	})
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
}
