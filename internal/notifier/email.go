package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

// VerificationSubject is the subject line of the verification email.
const VerificationSubject = "Verify your Blossom Retreat Account"

// Message is an outbound email.
type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var verificationHTML = template.Must(template.New("verification").Parse(`
<p>Welcome to Blossom Retreat Platform!</p>
<p>Please verify your email by clicking the link below:</p>
<a href="{{.}}">Verify Email</a>
<p>Or copy this link: {{.}}</p>
`))

// EmailNotifier renders the verification email and hands it to a Sender.
type EmailNotifier struct {
	sender      Sender
	from        string
	frontendURL string
}

// NewEmailNotifier creates a notifier linking to frontendURL's
// /verify-email page.
func NewEmailNotifier(sender Sender, from, frontendURL string) *EmailNotifier {
	return &EmailNotifier{
		sender:      sender,
		from:        from,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// SendVerification sends the verification link for token to email.
func (n *EmailNotifier) SendVerification(ctx context.Context, email, token string) error {
	msg, err := n.VerificationMessage(email, token)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

// VerificationMessage builds the email without sending it.
func (n *EmailNotifier) VerificationMessage(email, token string) (Message, error) {
	link := VerificationLink(n.frontendURL, token)

	var html bytes.Buffer
	if err := verificationHTML.Execute(&html, link); err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}

	return Message{
		From:    n.from,
		To:      []string{email},
		Subject: VerificationSubject,
		HTML:    html.String(),
		Text:    "Please verify your email by opening this link: " + link,
	}, nil
}

// VerificationLink returns "<frontendURL>/verify-email?token=<token>".
func VerificationLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/verify-email?" + url.Values{"token": {token}}.Encode()
}
