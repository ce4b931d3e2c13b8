// Package notify sends one-way messages (SMS codes, security emails) to
// users. Delivery is fire-and-forget from the caller's point of view;
// failures are logged, never surfaced to the requester, so a notification
// outage cannot be used to probe accounts.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Message is one outbound notification.
type Message struct {
	ID        string
	Recipient string
	Body      string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewMessage builds a message with a fresh delivery ID for correlation
// between audit logs and the provider's delivery reports.
func NewMessage(recipient, body string) Message {
	return Message{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Body:      body,
	}
}

// LogSender is the default Sender: it logs the delivery instead of
// calling a provider. Dev and test environments run on it; production
// swaps in a provider-backed implementation.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-backed Sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification dispatched",
		slog.String("message_id", msg.ID),
		slog.String("recipient", redactRecipient(msg.Recipient)),
	)
	return nil
}

// redactRecipient keeps only the last two characters so logs stay useful
// without carrying full contact addresses.
func redactRecipient(r string) string {
	if len(r) <= 2 {
		return "**"
	}
	return "****" + r[len(r)-2:]
}
