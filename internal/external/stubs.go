package external

import (
	"context"
	"log/slog"

	"marketingapi/internal/types"
)

// Stub implementations let the service boot locally without vendor
// credentials. They log what they would have done.

// StubEmailSender implements EmailSender by logging.
type StubEmailSender struct {
	logger *slog.Logger
}

// NewStubEmailSender creates a StubEmailSender.
func NewStubEmailSender(logger *slog.Logger) *StubEmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg types.EmailMessage) (string, error) {
	s.logger.InfoContext(ctx, "stub: email not sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return "stub-message-id", nil
}

// StubPushNotifier implements PushNotifier by logging.
type StubPushNotifier struct {
	logger *slog.Logger
}

// NewStubPushNotifier creates a StubPushNotifier.
func NewStubPushNotifier(logger *slog.Logger) *StubPushNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubPushNotifier{logger: logger}
}

func (s *StubPushNotifier) Push(ctx context.Context, msg types.PushMessage) error {
	s.logger.InfoContext(ctx, "stub: push not sent", slog.String("title", msg.Title))
	return nil
}
