// Package retry defines the retry policies used across the ingestion client
// and a driver that runs operations under them.
package retry

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy produces retry schedules. A Policy is immutable and safe to share;
// each operation gets a fresh schedule from NewBackOff.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// NoRetry is a policy that never re-attempts.
func NoRetry() Policy { return noRetry{} }

type noRetry struct{}

func (noRetry) NewBackOff() backoff.BackOff { return &backoff.StopBackOff{} }

// Constant retries up to retries times with a fixed interval between
// attempts (retries is the count of re-attempts after the first try).
func Constant(interval time.Duration, retries uint64) Policy {
	return constant{interval: interval, retries: retries}
}

type constant struct {
	interval time.Duration
	retries  uint64
}

func (p constant) NewBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(p.interval), p.retries)
}

// Intervals retries once per listed interval, sleeping the given duration
// before each re-attempt, then stops.
func Intervals(intervals ...time.Duration) Policy {
	return &intervalsPolicy{intervals: intervals}
}

type intervalsPolicy struct {
	intervals []time.Duration
}

func (p *intervalsPolicy) NewBackOff() backoff.BackOff {
	return &intervalsBackOff{intervals: p.intervals}
}

type intervalsBackOff struct {
	intervals []time.Duration
	next      int
}

func (b *intervalsBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.intervals) {
		return backoff.Stop
	}
	d := b.intervals[b.next]
	b.next++
	return d
}

func (b *intervalsBackOff) Reset() { b.next = 0 }

// Exponential doubles the sleep per attempt starting from base and adds a
// uniform random jitter in [0, maxJitter). maxAttempts caps the total number
// of tries, first included.
func Exponential(base, maxJitter time.Duration, maxAttempts int) Policy {
	return exponential{base: base, maxJitter: maxJitter, maxAttempts: maxAttempts}
}

type exponential struct {
	base        time.Duration
	maxJitter   time.Duration
	maxAttempts int
}

func (p exponential) NewBackOff() backoff.BackOff {
	return &exponentialBackOff{policy: p}
}

type exponentialBackOff struct {
	policy  exponential
	attempt int
}

func (b *exponentialBackOff) NextBackOff() time.Duration {
	// attempt counts completed tries; after maxAttempts of them, stop.
	if b.attempt+1 >= b.policy.maxAttempts {
		return backoff.Stop
	}
	d := b.policy.base << uint(b.attempt)
	if b.policy.maxJitter > 0 {
		d += time.Duration(rand.Int63n(int64(b.policy.maxJitter)))
	}
	b.attempt++
	return d
}

func (b *exponentialBackOff) Reset() { b.attempt = 0 }
