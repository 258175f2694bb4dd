package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// SlackSender posts notifications into a fixed Slack channel.
type SlackSender struct {
	api       *slack.Client
	channelID string
}

// NewSlackSender wraps api; channelID is the destination conversation.
func NewSlackSender(api *slack.Client, channelID string) *SlackSender {
	return &SlackSender{api: api, channelID: channelID}
}

// Channel implements Sender.
func (s *SlackSender) Channel() domain.NotificationChannel { return domain.ChannelSlack }

// Send posts the message with the subject as a bold header line.
func (s *SlackSender) Send(ctx context.Context, msg Message) error {
	if s.channelID == "" {
		return fmt.Errorf("slack channel not configured")
	}
	text := msg.Body
	if msg.Subject != "" {
		text = fmt.Sprintf("*%s*\n%s", msg.Subject, msg.Body)
	}
	_, _, err := s.api.PostMessageContext(ctx, s.channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}
