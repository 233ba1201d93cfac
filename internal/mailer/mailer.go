package mailer

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/google/uuid"
)

var verifyTemplate = template.Must(template.New("verify").Parse(`Hi {{.Name}},

Welcome to Capigrid. Please confirm your email address by opening the
link below:

{{.BaseURL}}/verify-email?token={{.Token}}

The link expires in 24 hours. If you did not create an account, you can
ignore this message.

The Capigrid team
`))

var resetTemplate = template.Must(template.New("reset").Parse(`Hi {{.Name}},

We received a request to reset the password for your Capigrid account.
Open the link below to choose a new password:

{{.BaseURL}}/reset-password?token={{.Token}}

The link expires in 1 hour. If you did not request a reset, you can
ignore this message and your password will stay unchanged.

The Capigrid team
`))

// Mailer composes notification emails and hands them to the queue.
// A nil Mailer is valid and drops all messages, used when outbound
// mail is disabled.
type Mailer struct {
	queue   *Queue
	baseURL string
}

func New(queue *Queue, baseURL string) *Mailer {
	return &Mailer{queue: queue, baseURL: baseURL}
}

// SendVerification queues the address confirmation email for a new user
func (m *Mailer) SendVerification(ctx context.Context, to, name, token string) error {
	if m == nil {
		return nil
	}
	return m.send(ctx, to, "Confirm your Capigrid account", verifyTemplate, name, token)
}

// SendPasswordReset queues the password reset email
func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	if m == nil {
		return nil
	}
	return m.send(ctx, to, "Reset your Capigrid password", resetTemplate, name, token)
}

func (m *Mailer) send(ctx context.Context, to, subject string, tmpl *template.Template, name, token string) error {
	var body bytes.Buffer
	data := struct {
		Name    string
		BaseURL string
		Token   string
	}{Name: name, BaseURL: m.baseURL, Token: token}

	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	email := &Email{
		ID:      uuid.New().String(),
		To:      to,
		Subject: subject,
		Body:    body.String(),
	}
	if err := m.queue.Enqueue(ctx, email); err != nil {
		return fmt.Errorf("failed to enqueue email: %w", err)
	}
	return nil
}
