package breach

import (
	"context"
	"log/slog"
)

// Email is the notification payload handed to the Dispatcher.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Dispatcher delivers breach notifications. Delivery mechanics live outside
// this engine; the coordinator owns only the decision of when to send.
type Dispatcher interface {
	SendEmail(ctx context.Context, email Email) error
}

// LogDispatcher writes notifications to the structured log instead of
// sending them. Default in development and the fallback when no mail
// transport is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) SendEmail(ctx context.Context, email Email) error {
	d.logger.InfoContext(ctx, "breach notification",
		"to", email.To,
		"subject", email.Subject,
	)
	return nil
}
