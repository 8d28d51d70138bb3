package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"louyass/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Email is one outgoing message
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers e-mails
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// NoopMailer logs and drops every message. Used when SMTP is not configured.
type NoopMailer struct {
	Logger *zap.SugaredLogger
}

// Send implements Mailer
func (m NoopMailer) Send(_ context.Context, email Email) error {
	if m.Logger != nil {
		m.Logger.Debugw("SMTP not configured, dropping e-mail", "to", email.To, "subject", email.Subject)
	}
	return nil
}

// SMTPConfig holds the SMTP relay settings
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	RequireTLS bool
	Timeout    time.Duration
}

// Configured reports whether enough settings are present to send mail
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Port > 0 && c.From != ""
}

// SMTPMailer sends multipart messages through an SMTP relay using STARTTLS
// and PLAIN auth. Consecutive failures open a circuit breaker so a dead relay
// does not tie up the dispatcher workers.
type SMTPMailer struct {
	cfg     SMTPConfig
	breaker *gobreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

// NewSMTPMailer creates an SMTP mailer
func NewSMTPMailer(cfg SMTPConfig, logger *zap.SugaredLogger) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &SMTPMailer{
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// State returns the breaker state
func (m *SMTPMailer) State() gobreaker.State {
	return m.breaker.State()
}

// Send implements Mailer
func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if email.To == "" {
		return errors.New("no recipient specified")
	}
	msg, err := buildMessage(m.cfg.From, email)
	if err != nil {
		return err
	}

	_, err = m.breaker.Execute(func() (interface{}, error) {
		return nil, m.deliver(ctx, email.To, msg)
	})
	if err != nil {
		reason := "smtp"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			reason = "circuit_open"
		}
		metrics.NotificationsFailed.WithLabelValues("email", reason).Inc()
		return fmt.Errorf("failed to send e-mail to %s: %w", email.To, err)
	}
	metrics.NotificationsSent.WithLabelValues("email").Inc()
	return nil
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(m.cfg.Timeout))
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			m.logger.Debugw("Failed to close SMTP client", "error", err)
		}
	}()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	} else if m.cfg.RequireTLS {
		return errors.New("SMTP server does not support STARTTLS")
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", to, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to initiate data transfer: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data transfer: %w", err)
	}
	return client.Quit()
}

// buildMessage renders a multipart/alternative message with a plain text and
// an HTML part
func buildMessage(from string, email Email) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", email.Text},
		{"text/html; charset=UTF-8", email.HTML},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", p.contentType)
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := mw.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("failed to create message part: %w", err)
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("failed to encode message part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode message part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", email.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", email.Subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
