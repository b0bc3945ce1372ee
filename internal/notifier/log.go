package notifier

import (
	"context"
	"log/slog"
	"strings"

	"github.com/utafrali/blossom-account/pkg/logger"
)

// LogSender writes emails to the log instead of sending them. It is used
// when no email API key is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the masked recipients, subject and plain-text body.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	to := make([]string, len(msg.To))
	for i, addr := range msg.To {
		to[i] = logger.MaskEmail(addr)
	}

	s.logger.InfoContext(ctx, "mock email",
		slog.String("to", strings.Join(to, ",")),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Text),
	)
	return nil
}
