package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/blossom-account/internal/notifier"
	"github.com/utafrali/blossom-account/pkg/kafka"
	"github.com/utafrali/blossom-account/pkg/logger"
)

// VerificationHandler returns a consumer handler that delivers each
// verification request through n. Other event types and undecodable
// payloads are skipped, so only delivery failures are retried.
func VerificationHandler(n notifier.Notifier, log *slog.Logger) kafka.Handler {
	return func(ctx context.Context, event *kafka.Event) error {
		if event.EventType != TypeVerificationRequested {
			log.DebugContext(ctx, "ignoring event", slog.String("event_type", event.EventType))
			return nil
		}

		var data VerificationRequestedData
		if err := event.UnmarshalData(&data); err != nil {
			log.ErrorContext(ctx, "skipping malformed verification request",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		if data.Email == "" || data.Token == "" {
			log.ErrorContext(ctx, "skipping incomplete verification request",
				slog.String("event_id", event.EventID),
			)
			return nil
		}

		if event.CorrelationID != "" {
			ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
		}

		if err := n.SendVerification(ctx, data.Email, data.Token); err != nil {
			return fmt.Errorf("deliver verification request: %w", err)
		}

		logger.WithContext(ctx, log).InfoContext(ctx, "verification email delivered",
			slog.String("event_id", event.EventID),
			logger.Email("email", data.Email),
		)
		return nil
	}
}
