package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string     { return e.err.Error() }
func (e *permanentError) Unwrap() error     { return e.err }
func (e *permanentError) IsPermanent() bool { return true }

// Permanent marks err so no retry policy will re-attempt the operation.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, is marked
// permanent. Errors may mark themselves by implementing
// interface{ IsPermanent() bool }.
func IsPermanent(err error) bool {
	var p interface{ IsPermanent() bool }
	if errors.As(err, &p) {
		return p.IsPermanent()
	}
	return false
}

// options collects the per-run hooks.
type options struct {
	shouldRetry    func(error) bool
	onRetry        func(err error, next time.Duration)
	onError        func(error)
	errOnExhausted bool
}

// Option adjusts one run of the driver.
type Option func(*options)

// WithShouldRetry vetoes re-attempts: after a failed attempt, fn decides
// whether the error is worth another try. Permanent errors stop the run
// regardless.
func WithShouldRetry(fn func(error) bool) Option {
	return func(o *options) { o.shouldRetry = fn }
}

// WithOnRetry calls fn with the attempt's error and the upcoming sleep
// before each re-attempt.
func WithOnRetry(fn func(err error, next time.Duration)) Option {
	return func(o *options) { o.onRetry = fn }
}

// WithOnError calls fn once with the final error when the run gives up.
func WithOnError(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

// WithoutErrOnExhausted makes an exhausted schedule return nil instead of
// the last attempt's error. Permanent failures and cancellation still
// surface.
func WithoutErrOnExhausted() Option {
	return func(o *options) { o.errOnExhausted = false }
}

// Do runs op under policy until it succeeds, fails permanently, or the
// schedule is exhausted. The last error is returned. Context cancellation
// stops the schedule between attempts.
func Do(ctx context.Context, policy Policy, op func() error, opts ...Option) error {
	o := options{errOnExhausted: true}
	for _, opt := range opts {
		opt(&o)
	}

	vetoed := false
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			vetoed = true
			return backoff.Permanent(err)
		}
		if o.shouldRetry != nil && !o.shouldRetry(err) {
			vetoed = true
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(policy.NewBackOff(), ctx)
	var err error
	if o.onRetry != nil {
		err = backoff.RetryNotify(wrapped, b, backoff.Notify(o.onRetry))
	} else {
		err = backoff.Retry(wrapped, b)
	}
	if err == nil {
		return nil
	}
	if o.onError != nil {
		o.onError(err)
	}
	if !o.errOnExhausted && !vetoed && ctx.Err() == nil {
		return nil
	}
	return err
}

// DoNotify runs op like Do and additionally calls notify with the attempt's
// error and the upcoming sleep before each re-attempt.
func DoNotify(ctx context.Context, policy Policy, op func() error, notify func(err error, next time.Duration)) error {
	if notify == nil {
		return Do(ctx, policy, op)
	}
	return Do(ctx, policy, op, WithOnRetry(notify))
}
