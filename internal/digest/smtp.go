package digest

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

const (
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
	SecurityNone     = "none"
)

// 投递摘要邮件
type Sender interface {
	Send(ctx context.Context, r *Rendered) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Security string
}

type SMTPSender struct {
	cfg  SMTPConfig
	from string
	to   []string
	now  func() time.Time
}

func NewSMTPSender(cfg SMTPConfig, from string, to []string) *SMTPSender {
	return &SMTPSender{cfg: cfg, from: from, to: to, now: time.Now}
}

func (s *SMTPSender) Send(ctx context.Context, r *Rendered) error {
	msg, err := BuildMessage(s.from, s.to, r, s.now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	client, err := s.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := sendMailViaSMTPClient(client, s.from, s.to, msg); err != nil {
		return err
	}
	log.Printf("digest sent to %d recipient(s) via %s", len(s.to), addr)
	return nil
}

func (s *SMTPSender) dial(ctx context.Context, addr string) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.Security == SecurityTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}

	if s.cfg.Security == SecurityStartTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("SMTP STARTTLS: %w", err)
		}
	}
	return client, nil
}

// 用已认证的SMTP连接发送邮件
func sendMailViaSMTPClient(client *smtp.Client, from string, to []string, body []byte) error {
	fromAddr := from
	if a, err := parseAddress(from); err == nil {
		fromAddr = a
	}
	if err := client.Mail(fromAddr); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}

	for _, rcpt := range to {
		addr := rcpt
		if a, err := parseAddress(rcpt); err == nil {
			addr = a
		}
		if err := client.Rcpt(addr); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", addr, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}

	if _, err := writer.Write(body); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}
