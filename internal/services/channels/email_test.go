package channels

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/motorlog/notifier/internal/domain/notification"
)

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("noreply@example.com", "ops@example.com", "  Host down ", "pg-1 stopped responding"))

	lines := strings.Split(msg, "\r\n")
	require.Equal(t, "From: noreply@example.com", lines[0])
	require.Equal(t, "To: ops@example.com", lines[1])
	require.Equal(t, "Subject: Host down", lines[2])
	require.Equal(t, "MIME-Version: 1.0", lines[3])
	require.Equal(t, "Content-Type: text/plain; charset=utf-8", lines[4])
	require.Equal(t, "", lines[5])
	require.Equal(t, "pg-1 stopped responding", lines[6])
	require.True(t, strings.HasSuffix(msg, "\r\n"))
}

func TestEmailIsEnabled(t *testing.T) {
	ctx := context.Background()

	// default true, but host must be configured
	h := NewEmailHandler(newMemSettings(nil), time.Second, zap.NewNop())
	require.False(t, h.IsEnabled(ctx))

	st := newMemSettings(map[string]string{"smtp/host": "mail.internal"})
	h = NewEmailHandler(st, time.Second, zap.NewNop())
	require.True(t, h.IsEnabled(ctx))

	st.set("notifications", "email_enabled", "false")
	require.False(t, h.IsEnabled(ctx))
}

func TestEmailSend_MissingConfigIsConfigError(t *testing.T) {
	h := NewEmailHandler(newMemSettings(nil), time.Second, zap.NewNop())
	_, err := h.Send(context.Background(), webhookRecord(1))
	require.ErrorIs(t, err, ErrConfig)

	// host set but no from address
	h = NewEmailHandler(newMemSettings(map[string]string{"smtp/host": "mail.internal"}), time.Second, zap.NewNop())
	_, err = h.Send(context.Background(), webhookRecord(1))
	require.ErrorIs(t, err, ErrConfig)
}

// silentSMTPServer accepts connections and never sends the 220 greeting.
func silentSMTPServer(t *testing.T) (host, port string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	connCh := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			connCh <- conn
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		for {
			select {
			case c := <-connCh:
				_ = c.Close()
			default:
				return
			}
		}
	})

	host, port, err = net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return host, port
}

func emailRecord() *notification.Record {
	return &notification.Record{
		Channel:     notification.ChannelEmail,
		EventType:   "check.down",
		Recipient:   "ops@example.com",
		Subject:     "Down",
		Content:     "pg-1 is down",
		MaxAttempts: 3,
	}
}

// A server that accepts the connection but never sends the SMTP greeting must
// fail the send within the deadline rather than hang the dispatch batch.
func TestEmailSend_SilentServerFailsWithinDeadline(t *testing.T) {
	host, port := silentSMTPServer(t)
	st := newMemSettings(map[string]string{
		"smtp/host":         host,
		"smtp/port":         port,
		"smtp/from_address": "noreply@example.com",
	})
	h := NewEmailHandler(st, 200*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, sendErr := h.Send(ctx, emailRecord())
		done <- sendErr
	}()

	select {
	case sendErr := <-done:
		require.Error(t, sendErr)
	case <-time.After(3 * time.Second):
		t.Fatal("send did not return within the deadline")
	}
}

// Without a context deadline the handler's own timeout still bounds the
// exchange.
func TestEmailSend_HandlerTimeoutBoundsExchange(t *testing.T) {
	host, port := silentSMTPServer(t)
	st := newMemSettings(map[string]string{
		"smtp/host":         host,
		"smtp/port":         port,
		"smtp/from_address": "noreply@example.com",
	})
	h := NewEmailHandler(st, 200*time.Millisecond, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, sendErr := h.Send(context.Background(), emailRecord())
		done <- sendErr
	}()

	select {
	case sendErr := <-done:
		require.Error(t, sendErr)
	case <-time.After(3 * time.Second):
		t.Fatal("send did not return within the handler timeout")
	}
}
