package app

import (
	"log/slog"

	"github.com/utafrali/blossom-account/internal/config"
	"github.com/utafrali/blossom-account/internal/notifier"
	"github.com/utafrali/blossom-account/pkg/httpclient"
)

// emailBreakerName labels the email API circuit breaker.
const emailBreakerName = "email-api"

// NewEmailSender returns a Resend sender behind retries and a circuit
// breaker, or a LogSender when no API key is configured.
func NewEmailSender(cfg *config.Config, logger *slog.Logger) notifier.Sender {
	if cfg.MockEmail() {
		logger.Warn("EMAIL_API_KEY not set, verification emails are logged instead of sent")
		return notifier.NewLogSender(logger)
	}

	client := httpclient.New(httpclient.DefaultConfig())
	breaker := httpclient.NewCircuitBreakerClient(client, httpclient.DefaultCircuitBreakerConfig(emailBreakerName), logger)
	return notifier.NewResendSender(breaker, cfg.EmailAPIURL, cfg.EmailAPIKey, logger)
}

// NewEmailNotifier renders verification emails and sends them with
// NewEmailSender.
func NewEmailNotifier(cfg *config.Config, logger *slog.Logger) *notifier.EmailNotifier {
	return notifier.NewEmailNotifier(NewEmailSender(cfg, logger), cfg.EmailSender, cfg.FrontendURL)
}
