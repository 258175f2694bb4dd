// Package notify delivers notification records over external channels.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// Message is a rendered notification ready for a channel.
type Message struct {
	NotificationID string
	TicketID       string
	RecipientID    string
	// Address is the channel-specific destination (email, phone). Optional.
	Address  string
	Type     domain.NotificationType
	Subject  string
	Body     string
	Metadata map[string]any
}

// Sender pushes a message over one channel.
type Sender interface {
	Channel() domain.NotificationChannel
	Send(ctx context.Context, msg Message) error
}

// Registry resolves senders by channel.
type Registry struct {
	senders map[domain.NotificationChannel]Sender
}

// NewRegistry indexes senders by their channel. Later senders replace earlier ones.
func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[domain.NotificationChannel]Sender, len(senders))}
	for _, s := range senders {
		if s != nil {
			r.senders[s.Channel()] = s
		}
	}
	return r
}

// Get returns the sender for channel.
func (r *Registry) Get(channel domain.NotificationChannel) (Sender, error) {
	if r != nil {
		if s, ok := r.senders[channel]; ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no sender configured for channel %q", channel)
}

// InternalSender stores nothing beyond the notification record itself.
type InternalSender struct{}

// Channel implements Sender.
func (InternalSender) Channel() domain.NotificationChannel { return domain.ChannelInternal }

// Send implements Sender.
func (InternalSender) Send(context.Context, Message) error { return nil }

// LogSender stands in for transports that are not wired (email, WhatsApp).
type LogSender struct {
	channel domain.NotificationChannel
	from    string
	logger  *zap.Logger
}

// NewLogSender returns a stub sender for channel.
func NewLogSender(channel domain.NotificationChannel, from string, logger *zap.Logger) *LogSender {
	return &LogSender{channel: channel, from: from, logger: logger}
}

// Channel implements Sender.
func (s *LogSender) Channel() domain.NotificationChannel { return s.channel }

// Send logs the message.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if msg.Address == "" && s.channel != domain.ChannelInternal {
		return fmt.Errorf("%s: recipient %s has no address", s.channel, msg.RecipientID)
	}
	s.logger.Info("notification stub send",
		zap.String("channel", string(s.channel)),
		zap.String("from", s.from),
		zap.String("to", msg.Address),
		zap.String("ticket_id", msg.TicketID),
		zap.String("type", string(msg.Type)),
		zap.String("subject", msg.Subject),
	)
	return nil
}
