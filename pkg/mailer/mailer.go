package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/bookstore-backend/pkg/config"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
)

// Message is a single rendered email to one recipient.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var errRecipientRequired = errors.New("recipient email is required")

// New returns a SendGrid sender when an API key is configured and a logging
// sender otherwise.
func New(cfg config.SendgridConfig, logg *logger.Logger) Sender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return &LogSender{logg: logg}
	}
	return &SendgridSender{
		client:   sendgrid.NewSendClient(cfg.APIKey),
		from:     cfg.DefaultFrom,
		fromName: cfg.FromName,
		logg:     logg,
	}
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridSender posts messages to the SendGrid v3 API.
type SendgridSender struct {
	client   sendClient
	from     string
	fromName string
	logg     *logger.Logger
}

func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return errRecipientRequired
	}
	email := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.from),
		msg.Subject,
		mail.NewEmail(msg.ToName, to),
		msg.Text,
		msg.HTML,
	)
	resp, err := s.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp == nil || resp.StatusCode >= 300 {
		status := 0
		body := ""
		if resp != nil {
			status = resp.StatusCode
			body = resp.Body
		}
		return fmt.Errorf("sendgrid send: status %d: %s", status, strings.TrimSpace(body))
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "to", to), "email sent")
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logg *logger.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errRecipientRequired
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"to":      msg.To,
			"subject": msg.Subject,
		})
		s.logg.Info(logCtx, "email delivery disabled; message logged")
	}
	return nil
}
