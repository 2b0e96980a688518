package payments

import (
	"context"
	"log/slog"
	"strings"

	"marketingapi/internal/external"
	"marketingapi/internal/types"
)

// Notifier delivers customer and operator notifications. Delivery failures
// are logged and never returned: notifications are best effort.
type Notifier struct {
	email      external.EmailSender
	push       external.PushNotifier
	adminEmail string
	logger     *slog.Logger
}

// NewNotifier creates a Notifier. An empty adminEmail disables admin email
// but not admin push.
func NewNotifier(email external.EmailSender, push external.PushNotifier, adminEmail string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{email: email, push: push, adminEmail: strings.TrimSpace(adminEmail), logger: logger}
}

// Customer emails msg to a customer.
func (n *Notifier) Customer(ctx context.Context, to string, msg message) {
	to = strings.TrimSpace(to)
	if to == "" {
		return
	}
	id, err := n.email.Send(ctx, types.EmailMessage{To: to, Subject: msg.Subject, TextBody: msg.Body})
	if err != nil {
		n.logger.ErrorContext(ctx, "customer email failed", "subject", msg.Subject, "error", err)
		return
	}
	n.logger.InfoContext(ctx, "customer email sent", "subject", msg.Subject, "message_id", id)
}

// Admin emails the operators (replies go to replyTo when set) and pushes the
// same text to their devices.
func (n *Notifier) Admin(ctx context.Context, msg message, replyTo string) {
	if n.adminEmail == "" {
		n.logger.WarnContext(ctx, "ADMIN_EMAIL not configured; skipping admin email", "subject", msg.Subject)
	} else if _, err := n.email.Send(ctx, types.EmailMessage{
		To:       n.adminEmail,
		ReplyTo:  strings.TrimSpace(replyTo),
		Subject:  msg.Subject,
		TextBody: msg.Body,
	}); err != nil {
		n.logger.ErrorContext(ctx, "admin email failed", "subject", msg.Subject, "error", err)
	}

	if err := n.push.Push(ctx, types.PushMessage{Title: msg.Subject, Message: msg.Body}); err != nil {
		n.logger.ErrorContext(ctx, "admin push failed", "subject", msg.Subject, "error", err)
	}
}
