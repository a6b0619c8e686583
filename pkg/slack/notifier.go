package slack

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier sends the bunker's admin notifications (A5) to a single Slack
// channel: new pending request, provisioning completed, admin heartbeat
// lost. Adapted from the teacher's alert Notifier, trimmed to the
// outbound-only surface this daemon needs — no slash commands or
// interactive modals, since the bunker never receives Slack callbacks.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Slack Notifier. If botToken is empty, the notifier
// is a noop (logging only) — admin notifications are optional (A5).
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// IsEnabled returns true if the notifier has a valid Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyPendingRequest posts the "new pending request" message.
func (n *Notifier) NotifyPendingRequest(ctx context.Context, req PendingRequestInfo) error {
	return n.post(ctx, PendingRequestBlocks(req), fmt.Sprintf("New signing request for %s", req.KeyName))
}

// NotifyProvisioningCompleted posts the "provisioning completed" message.
func (n *Notifier) NotifyProvisioningCompleted(ctx context.Context, p ProvisioningInfo) error {
	return n.post(ctx, ProvisioningCompletedBlocks(p), fmt.Sprintf("Provisioned key %s", p.KeyName))
}

// NotifyHeartbeatLost posts the "admin heartbeat lost" message.
func (n *Notifier) NotifyHeartbeatLost(ctx context.Context, h HeartbeatInfo) error {
	return n.post(ctx, HeartbeatLostBlocks(h), fmt.Sprintf("Relay %s quiet for key %s", h.Relay, h.KeyName))
}

func (n *Notifier) post(ctx context.Context, blocks []goslack.Block, fallbackText string) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping post", "text", fallbackText)
		return nil
	}

	opts := []goslack.MsgOption{
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(fallbackText, false),
	}

	channelID, ts, err := n.client.PostMessageContext(ctx, n.channel, opts...)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}

	n.logger.Debug("posted to slack", "channel", channelID, "ts", ts)
	return nil
}
