package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

// PendingRequestBlocks builds the "new pending request" notification (A5):
// a relay client is waiting on admin approval for a signing or connect
// request.
func PendingRequestBlocks(req PendingRequestInfo) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType, "🔔 New signing request", true, false),
	)

	var fields []*goslack.TextBlockObject
	fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Key:* %s", req.KeyName), false, false))
	fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Method:* %s", req.Method), false, false))
	if req.AppName != "" {
		fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*App:* %s", req.AppName), false, false))
	}
	section := goslack.NewSectionBlock(nil, fields, nil)

	blocks := []goslack.Block{header, section}

	if req.ApproveURL != "" {
		approveBtn := goslack.NewButtonBlockElement("approve_request", req.RequestID,
			goslack.NewTextBlockObject(goslack.PlainTextType, "Review request", true, false))
		approveBtn.URL = req.ApproveURL
		blocks = append(blocks, goslack.NewActionBlock("request_actions", approveBtn))
	}

	return blocks
}

// ProvisioningCompletedBlocks builds the "provisioning completed"
// notification (A5): a create_account request finished and a new key is
// live.
func ProvisioningCompletedBlocks(p ProvisioningInfo) []goslack.Block {
	text := fmt.Sprintf("✅ Provisioned key *%s*\n`%s`", p.KeyName, p.PubKeyHex)
	if p.AppName != "" {
		text += fmt.Sprintf("\nfor app *%s*", p.AppName)
	}
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// HeartbeatLostBlocks builds the "admin heartbeat lost" notification (A5):
// a key's relay connection has gone quiet longer than the configured
// threshold.
func HeartbeatLostBlocks(h HeartbeatInfo) []goslack.Block {
	text := fmt.Sprintf("🔴 No events from relay `%s` for key *%s* since %s", h.Relay, h.KeyName, h.Since)
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}
