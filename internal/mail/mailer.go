// Package mail delivers transactional emails (verification codes and reset
// links) over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Mailer sends one HTML message. A nil error means the transport accepted it.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Timeout    time.Duration
	MaxRetries uint64
}

// sender is the part of *gomail.Client used for delivery.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPMailer sends through an SMTP relay with bounded timeout and retries.
type SMTPMailer struct {
	client  sender
	from    string
	timeout time.Duration
	backoff func() retry.Backoff
	logger  *zap.SugaredLogger
}

func NewSMTPMailer(cfg SMTPConfig, logger *zap.SugaredLogger) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail: smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail: sender address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	opts := []gomail.Option{
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(cfg.Timeout),
	}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: new smtp client: %w", err)
	}
	return newSMTPMailer(client, cfg, logger), nil
}

func newSMTPMailer(client sender, cfg SMTPConfig, logger *zap.SugaredLogger) *SMTPMailer {
	retries := cfg.MaxRetries
	return &SMTPMailer{
		client:  client,
		from:    cfg.From,
		timeout: cfg.Timeout,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(retries, retry.NewExponential(200*time.Millisecond))
		},
		logger: logger,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("mail: invalid sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail: invalid recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	attempt := 0
	err := retry.Do(ctx, m.backoff(), func(ctx context.Context) error {
		attempt++
		sendCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		if err := m.client.DialAndSendWithContext(sendCtx, msg); err != nil {
			m.logger.Debugw("smtp send attempt failed", "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mail: send after %d attempt(s): %w", attempt, err)
	}
	return nil
}

// LogMailer records deliveries in the log instead of sending them. The body
// carries the secret, so it is only written, at debug level, when
// revealBody is set.
type LogMailer struct {
	logger     *zap.SugaredLogger
	revealBody bool
}

func NewLogMailer(logger *zap.SugaredLogger, revealBody bool) *LogMailer {
	return &LogMailer{logger: logger, revealBody: revealBody}
}

func (m *LogMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.logger.Infow("mail not sent: no smtp host configured", "to", to, "subject", subject, "body_bytes", len(htmlBody))
	if m.revealBody {
		m.logger.Debugw("undelivered mail body", "to", to, "body", htmlBody)
	}
	return nil
}
