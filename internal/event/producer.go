// Package event carries verification requests over Kafka so email delivery
// can run in a separate mailer process.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/blossom-account/pkg/kafka"
	"github.com/utafrali/blossom-account/pkg/logger"
)

const (
	// Source identifies this service in event envelopes.
	Source = "account-service"

	// TypeVerificationRequested is the event type of a verification request.
	TypeVerificationRequested = "account.verification_requested"

	aggregateUser = "user"
)

// TopicVerificationRequested is the topic verification requests are
// published to.
var TopicVerificationRequested = kafka.Topic("account", "verification_requested")

// VerificationRequestedData is the payload of a verification request.
type VerificationRequestedData struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Producer publishes verification requests instead of sending email
// directly.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a Producer.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

// SendVerification publishes a verification request keyed by email.
func (p *Producer) SendVerification(ctx context.Context, email, token string) error {
	event, err := kafka.NewEvent(TypeVerificationRequested, email, aggregateUser, Source,
		VerificationRequestedData{Email: email, Token: token})
	if err != nil {
		return err
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.publisher.Publish(ctx, TopicVerificationRequested, event); err != nil {
		return fmt.Errorf("publish verification request: %w", err)
	}

	p.logger.DebugContext(ctx, "verification request published",
		slog.String("event_id", event.EventID),
		logger.Email("email", email),
	)
	return nil
}
