// Package webhook implements an HTTP POST notifier.
//
// Events are published as JSON to a configurable URL. Transient failures
// are retried with exponential backoff; 4xx responses are not.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/hopper/iox"
	"github.com/pithecene-io/hopper/notify"
	"github.com/pithecene-io/hopper/retry"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// backoffBase is the first retry's wait; each later wait doubles it.
const backoffBase = 500 * time.Millisecond

// Config configures the webhook notifier.
type Config struct {
	// URL is the HTTP endpoint to POST to (required).
	URL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 0;
	// DefaultRetries is what the CLI passes).
	Retries int
}

// Notifier publishes operation events via HTTP POST.
type Notifier struct {
	config Config
	client *http.Client

	// base spaces the retries; tests shrink it.
	base time.Duration
}

// New creates a webhook notifier from the given config. Returns an error
// if the URL is empty.
func New(cfg Config) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook notifier requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Notifier{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		base:   backoffBase,
	}, nil
}

// Publish sends the event as a JSON POST request. 5xx responses and
// network errors are retried with exponential backoff; 4xx responses fail
// immediately.
func (n *Notifier) Publish(ctx context.Context, event *notify.OperationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	pol := retry.Exponential(n.base, 0, 1+n.config.Retries)
	if err := retry.Do(ctx, pol, func() error { return n.post(ctx, body) }); err != nil {
		return fmt.Errorf("webhook: publish event: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// IsPermanent integrates with the retry driver: a 4xx answer will not
// change on a re-send.
func (e *StatusError) IsPermanent() bool {
	return e.Code >= 400 && e.Code < 500
}

// post performs a single HTTP POST and returns nil on 2xx.
func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}

	return nil
}

// Close releases notifier resources.
func (n *Notifier) Close() error {
	n.client.CloseIdleConnections()
	return nil
}

// Verify Notifier implements the notify interface.
var _ notify.Notifier = (*Notifier)(nil)
