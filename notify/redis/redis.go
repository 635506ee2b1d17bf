// Package redis implements a Redis pub/sub notifier.
//
// Events are published as JSON to a configurable Redis channel. Connection
// failures are retried with exponential backoff.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/hopper/notify"
	"github.com/pithecene-io/hopper/retry"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "hopper:ingestion_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// backoffBase is the first retry's wait; each later wait doubles it.
const backoffBase = 500 * time.Millisecond

// Config configures the Redis pub/sub notifier.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default:
	// hopper:ingestion_completed).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 0;
	// DefaultRetries is what the CLI passes).
	Retries int
}

// Notifier publishes operation events via Redis PUBLISH.
type Notifier struct {
	config Config
	client *goredis.Client

	// base spaces the retries; tests shrink it.
	base time.Duration
}

// New creates a Redis pub/sub notifier from the given config. Returns an
// error if the URL is empty or invalid.
func New(cfg Config) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis notifier requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis notifier: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Notifier{
		config: cfg,
		client: goredis.NewClient(opts),
		base:   backoffBase,
	}, nil
}

// Publish sends the event as a JSON PUBLISH to the configured channel,
// retrying failures with exponential backoff.
func (n *Notifier) Publish(ctx context.Context, event *notify.OperationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	pol := retry.Exponential(n.base, 0, 1+n.config.Retries)
	err = retry.Do(ctx, pol, func() error {
		publishCtx, cancel := context.WithTimeout(ctx, n.config.Timeout)
		defer cancel()
		return n.client.Publish(publishCtx, n.config.Channel, body).Err()
	})
	if err != nil {
		return fmt.Errorf("redis: publish event: %w", err)
	}
	return nil
}

// Close releases notifier resources.
func (n *Notifier) Close() error {
	return n.client.Close()
}

// Verify Notifier implements the notify interface.
var _ notify.Notifier = (*Notifier)(nil)
