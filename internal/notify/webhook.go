package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// WebhookSender POSTs notifications as JSON to a configured URL.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender builds a sender; timeout <= 0 uses 10s.
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{url: url, client: &http.Client{Timeout: timeout}}
}

// Channel implements Sender.
func (s *WebhookSender) Channel() domain.NotificationChannel { return domain.ChannelWebhook }

type webhookPayload struct {
	NotificationID string                  `json:"notification_id"`
	TicketID       string                  `json:"ticket_id"`
	RecipientID    string                  `json:"recipient_id"`
	Type           domain.NotificationType `json:"type"`
	Subject        string                  `json:"subject,omitempty"`
	Message        string                  `json:"message"`
	Metadata       map[string]any          `json:"metadata,omitempty"`
}

// Send posts the payload. Any non-2xx response is an error.
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		NotificationID: msg.NotificationID,
		TicketID:       msg.TicketID,
		RecipientID:    msg.RecipientID,
		Type:           msg.Type,
		Subject:        msg.Subject,
		Message:        msg.Body,
		Metadata:       msg.Metadata,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
