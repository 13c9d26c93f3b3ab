package channels

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/domain/settings"
)

var _ Handler = (*EmailHandler)(nil)

// EmailHandler delivers over SMTP. Connection parameters live in the admin
// settings store (category "smtp") so they can change without a restart.
type EmailHandler struct {
	settings settings.Store
	timeout  time.Duration
	log      *zap.Logger
}

func NewEmailHandler(st settings.Store, timeout time.Duration, log *zap.Logger) *EmailHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmailHandler{
		settings: st,
		timeout:  timeout,
		log:      log.With(zap.String("component", "channels.email")),
	}
}

func (h *EmailHandler) IsEnabled(ctx context.Context) bool {
	if !settings.Bool(ctx, h.settings, "notifications", "email_enabled", true) {
		return false
	}
	return settings.String(ctx, h.settings, "smtp", "host", "") != ""
}

func (h *EmailHandler) Send(ctx context.Context, rec *notification.Record) (*notification.SendResult, error) {
	host := settings.String(ctx, h.settings, "smtp", "host", "")
	if host == "" {
		return nil, fmt.Errorf("%w: smtp host not configured", ErrConfig)
	}
	port := settings.Int(ctx, h.settings, "smtp", "port", 587)
	from := settings.String(ctx, h.settings, "smtp", "from_address", "")
	if from == "" {
		return nil, fmt.Errorf("%w: smtp from address not configured", ErrConfig)
	}
	user := settings.String(ctx, h.settings, "smtp", "username", "")
	pass := settings.String(ctx, h.settings, "smtp", "password", "")
	useTLS := settings.Bool(ctx, h.settings, "smtp", "use_tls", false)

	addr := fmt.Sprintf("%s:%d", host, port)
	var auth smtp.Auth
	if user != "" || pass != "" {
		auth = smtp.PlainAuth("", user, pass, host)
	}

	msg := buildMessage(from, rec.Recipient, rec.Subject, rec.Content)

	start := time.Now()
	log := h.log.With(
		zap.String("smtp_addr", addr),
		zap.Bool("tls", useTLS),
		zap.String("to", rec.Recipient),
	)

	var err error
	if useTLS {
		err = h.sendTLS(ctx, addr, host, auth, from, rec.Recipient, msg)
	} else {
		err = h.sendPlain(ctx, addr, host, auth, from, rec.Recipient, msg)
	}
	if err != nil {
		log.Warn("smtp send failed", zap.Error(err))
		return nil, fmt.Errorf("smtp send: %w", err)
	}

	log.Info("email sent", zap.Duration("elapsed", time.Since(start)))
	return &notification.SendResult{Response: "accepted by " + addr}, nil
}

// deadline bounds every SMTP exchange. A server that accepts the connection
// and then goes silent fails the send instead of stalling the dispatch batch.
func (h *EmailHandler) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(h.timeout)
}

func (h *EmailHandler) sendTLS(ctx context.Context, addr, host string, auth smtp.Auth, from, to string, msg []byte) error {
	dialer := net.Dialer{Timeout: h.timeout}
	conn, err := tls.DialWithDialer(&dialer, "tcp", addr, &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return fmt.Errorf("tls dial: %w", err)
	}
	_ = conn.SetDeadline(h.deadline(ctx))

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer func() { _ = c.Close() }()

	return h.exchange(c, auth, from, to, msg)
}

func (h *EmailHandler) sendPlain(ctx context.Context, addr, host string, auth smtp.Auth, from, to string, msg []byte) error {
	dialer := net.Dialer{Timeout: h.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	_ = conn.SetDeadline(h.deadline(ctx))

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	return h.exchange(c, auth, from, to, msg)
}

func (h *EmailHandler) exchange(c *smtp.Client, auth smtp.Auth, from, to string, msg []byte) error {
	if auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	subject = strings.TrimSpace(subject)
	return []byte(
		"From: " + from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" + body + "\r\n")
}
