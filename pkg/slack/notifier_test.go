package slack

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewNotifier_NoopWithoutToken(t *testing.T) {
	n := NewNotifier("", "#alerts", discardLogger())
	if n.IsEnabled() {
		t.Fatal("expected notifier to be disabled without a bot token")
	}
}

func TestNewNotifier_NoopWithoutChannel(t *testing.T) {
	n := NewNotifier("xoxb-test", "", discardLogger())
	if n.IsEnabled() {
		t.Fatal("expected notifier to be disabled without a channel")
	}
}

func TestNotify_NoopReturnsNilError(t *testing.T) {
	n := NewNotifier("", "", discardLogger())
	ctx := context.Background()

	if err := n.NotifyPendingRequest(ctx, PendingRequestInfo{KeyName: "k"}); err != nil {
		t.Errorf("NotifyPendingRequest() on disabled notifier = %v, want nil", err)
	}
	if err := n.NotifyProvisioningCompleted(ctx, ProvisioningInfo{KeyName: "k"}); err != nil {
		t.Errorf("NotifyProvisioningCompleted() on disabled notifier = %v, want nil", err)
	}
	if err := n.NotifyHeartbeatLost(ctx, HeartbeatInfo{KeyName: "k"}); err != nil {
		t.Errorf("NotifyHeartbeatLost() on disabled notifier = %v, want nil", err)
	}
}
