package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jordan-wright/email"
)

// SMTPConfig holds SMTP settings for the email sender.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	Currency string
}

// ErrNoRecipient is returned when the parent has no email address.
var ErrNoRecipient = errors.New("messaging: recipient email missing")

// EmailSender delivers reminders via SMTP.
type EmailSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewEmailSender creates a new email sender.
func NewEmailSender(cfg SMTPConfig, logger *slog.Logger) *EmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailSender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// Deliver sends the reminder synchronously.
func (s *EmailSender) Deliver(ctx context.Context, r Reminder) (Receipt, error) {
	if r.Recipient.Email == "" {
		return Receipt{}, ErrNoRecipient
	}
	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = []string{r.Recipient.Email}
	e.Subject = Subject(r)
	e.Text = []byte(Body(r, s.cfg.Currency))
	messageID := uuid.NewString()
	e.Headers.Set("X-Installment-ID", r.InstallmentID.String())
	e.Headers.Set("X-Reminder-ID", messageID)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Error("send reminder email",
			slog.String("to", r.Recipient.Email),
			slog.String("kind", string(r.Kind)),
			slog.Any("error", err),
		)
		return Receipt{}, fmt.Errorf("messaging: send email: %w", err)
	}

	s.logger.Info("reminder email sent",
		slog.String("to", r.Recipient.Email),
		slog.String("kind", string(r.Kind)),
		slog.String("installment_id", r.InstallmentID.String()),
	)
	return Receipt{Delivered: true, ID: messageID}, nil
}

// HandleDeliverTask processes TaskTypeDeliverReminder tasks.
func (s *EmailSender) HandleDeliverTask(ctx context.Context, t *asynq.Task) error {
	var r Reminder
	if err := json.Unmarshal(t.Payload(), &r); err != nil {
		return asynq.SkipRetry
	}
	if _, err := s.Deliver(ctx, r); err != nil {
		if errors.Is(err, ErrNoRecipient) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}
	return nil
}
