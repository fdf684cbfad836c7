package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/statusify/statusify/internal/config"
)

// Message is a plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Mailer delivers email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends email through an SMTP relay.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	logger   zerolog.Logger
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer returns an SMTPMailer when an SMTP host is configured and a
// LogMailer otherwise.
func NewMailer(cfg config.EmailConfig, logger zerolog.Logger) (Mailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return NewLogMailer(logger), nil
	}
	return NewSMTPMailer(cfg, logger)
}

// NewSMTPMailer constructs a new SMTPMailer from config.
func NewSMTPMailer(cfg config.EmailConfig, logger zerolog.Logger) (*SMTPMailer, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	from := strings.TrimSpace(cfg.From)
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from address is required")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	return &SMTPMailer{
		host:     host,
		port:     port,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		from:     from,
		logger:   logger.With().Str("mailer", "smtp").Logger(),
		send:     smtp.SendMail,
	}, nil
}

func (m *SMTPMailer) Send(_ context.Context, msg Message) error {
	recipients := sanitizeRecipients(msg.To)
	if len(recipients) == 0 {
		return nil
	}

	message := []byte(formatHeaders(m.from, recipients, msg.Subject) + msg.Body)
	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	if err := m.send(addr, auth, m.from, recipients, message); err != nil {
		return err
	}

	m.logger.Info().
		Strs("recipients", recipients).
		Str("subject", msg.Subject).
		Msg("email sent")
	return nil
}

func (m *SMTPMailer) String() string {
	return fmt.Sprintf("SMTPMailer(%s:%d)", m.host, m.port)
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("mailer", "log").Logger()}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info().
		Strs("recipients", sanitizeRecipients(msg.To)).
		Str("subject", msg.Subject).
		Msg("smtp not configured; email not sent")
	return nil
}

func (m *LogMailer) String() string {
	return "LogMailer"
}

func formatHeaders(from string, to []string, subject string) string {
	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		from, strings.Join(to, ","), subject)
}
