// Package mail sends plain-text notification emails.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender is implemented by SMTPMailer and LogMailer.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host   string
	Port   int
	User   string
	Pass   string
	Sender string
}

type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
	log    *zap.Logger
}

func NewSMTPMailer(cfg SMTPConfig, log *zap.Logger) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		log:    log,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	to := cleanRecipients(msg.To)
	if len(to) == 0 {
		return errors.New("mail: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.cfg.Sender)
	gm.SetHeader("To", to...)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("mail: send %q: %w", msg.Subject, err)
	}

	m.log.Info("email sent", zap.Strings("to", to), zap.String("subject", msg.Subject))
	return nil
}

// LogMailer writes messages to the log instead of sending them. Used when
// no SMTP host is configured.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	to := cleanRecipients(msg.To)
	if len(to) == 0 {
		return errors.New("mail: no recipients")
	}
	m.log.Info("email not sent, SMTP disabled",
		zap.Strings("to", to),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}

// New picks SMTP when a host is configured.
func New(cfg SMTPConfig, log *zap.Logger) Sender {
	if strings.TrimSpace(cfg.Host) == "" {
		return NewLogMailer(log)
	}
	return NewSMTPMailer(cfg, log)
}

func cleanRecipients(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, addr := range in {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr)
	}
	return out
}
