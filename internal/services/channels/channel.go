// Package channels implements the per-channel delivery handlers and the
// registry the dispatcher resolves them through.
package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/motorlog/notifier/internal/domain/notification"
)

const UserAgent = "motorlog-notifier/1.0"

var (
	// ErrRateLimited means the destination's send window is exhausted; the
	// dispatcher defers the record to the next cycle without consuming an
	// attempt.
	ErrRateLimited = errors.New("destination rate limited")
	// ErrSkip means delivery should not happen and never will for this
	// record (e.g. destination disabled); not a failure.
	ErrSkip = errors.New("delivery skipped")
	// ErrConfig marks a missing-configuration condition that retrying cannot
	// fix; the dispatcher fails the record immediately.
	ErrConfig = errors.New("configuration error")
)

// Handler is the unit of work for one channel. IsEnabled must be cheap and
// side-effect-free; Send performs the actual delivery and returns a
// descriptive error for expected failure modes instead of panicking.
type Handler interface {
	IsEnabled(ctx context.Context) bool
	Send(ctx context.Context, rec *notification.Record) (*notification.SendResult, error)
}

// Registry is the fixed channel→handler mapping, populated once at startup
// and injected into the dispatcher.
type Registry struct {
	handlers map[notification.Channel]Handler
}

func NewRegistry(handlers map[notification.Channel]Handler) *Registry {
	return &Registry{handlers: handlers}
}

func (r *Registry) Get(c notification.Channel) (Handler, bool) {
	h, ok := r.handlers[c]
	return h, ok
}

// Enabled returns the channels whose handlers currently report enabled,
// sorted for stable output.
func (r *Registry) Enabled(ctx context.Context) []notification.Channel {
	out := make([]notification.Channel, 0, len(r.handlers))
	for c, h := range r.handlers {
		if c == notification.ChannelInApp || h.IsEnabled(ctx) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// newHTTPClient builds the shared client for HTTP-based handlers. Per-send
// deadlines come from request contexts, not from the client timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}

const maxResponseSnippet = 4 << 10

// doRequest executes req and converts the HTTP outcome into the handler
// contract: 2xx yields a SendResult, anything else is an error carrying the
// status and a response snippet for the history log.
func doRequest(client *http.Client, req *http.Request) (*notification.SendResult, error) {
	req.Header.Set("User-Agent", UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet))
	snippet := string(body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}
	return &notification.SendResult{StatusCode: resp.StatusCode, Response: snippet}, nil
}
