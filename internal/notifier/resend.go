package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/utafrali/blossom-account/pkg/httpclient"
	"github.com/utafrali/blossom-account/pkg/logger"
)

// DefaultResendURL is the Resend send-email endpoint.
const DefaultResendURL = "https://api.resend.com/emails"

// ResendSender sends email through the Resend HTTP API.
type ResendSender struct {
	client httpclient.Doer
	url    string
	apiKey string
	logger *slog.Logger
}

// NewResendSender creates a sender posting to url with apiKey as bearer
// credentials. An empty url uses DefaultResendURL.
func NewResendSender(client httpclient.Doer, url, apiKey string, logger *slog.Logger) *ResendSender {
	if url == "" {
		url = DefaultResendURL
	}
	return &ResendSender{client: client, url: url, apiKey: apiKey, logger: logger}
}

type resendResponse struct {
	ID string `json:"id"`
}

// Send posts msg to the API.
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("email api: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, "resend")
	}
	defer func() { _ = resp.Body.Close() }()

	var out resendResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return fmt.Errorf("decode email api response: %w", err)
	}

	attrs := []any{slog.String("email_id", out.ID)}
	for _, to := range msg.To {
		attrs = append(attrs, logger.Email("to", to))
	}
	s.logger.InfoContext(ctx, "email sent", attrs...)
	return nil
}
