package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"ServerMonitorAPI/internal/config"
	"ServerMonitorAPI/internal/logger"
)

// SendFunc has the shape of smtp.SendMail plus a context; tests swap it out.
type SendFunc func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error

type EmailProvider struct {
	cfg    config.SMTPConfig
	log    *logger.Logger
	sender SendFunc
}

func NewEmailProvider(cfg config.SMTPConfig, log *logger.Logger) *EmailProvider {
	p := &EmailProvider{cfg: cfg, log: log}
	p.sender = p.dialAndSend
	return p
}

func (p *EmailProvider) SetSender(fn SendFunc) {
	p.sender = fn
}

// Send mails content to destination, which may hold several
// comma-separated addresses.
func (p *EmailProvider) Send(ctx context.Context, destination, subject, content string, metadata map[string]interface{}) Result {
	var to []string
	for _, addr := range strings.Split(destination, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return failure("no email recipient")
	}
	return p.SendTo(ctx, to, subject, content)
}

func (p *EmailProvider) SendTo(ctx context.Context, to []string, subject, content string) Result {
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}

	msg := buildMessage(p.cfg.From, to, subject, content)

	if err := p.sender(ctx, addr, auth, p.cfg.From, to, msg); err != nil {
		p.log.Warn("Email to %s failed: %v", strings.Join(to, ","), err)
		return failure("%v", err)
	}

	p.log.Debug("Email sent to %s", strings.Join(to, ","))
	return ok()
}

func buildMessage(from string, to []string, subject, content string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ",") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(content)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// dialAndSend is smtp.SendMail with a bounded dial.
func (p *EmailProvider) dialAndSend(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	timeout := p.cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if found, _ := c.Extension("STARTTLS"); found {
		if err := c.StartTLS(&tls.Config{ServerName: p.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
