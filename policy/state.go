package policy

import (
	"sync"
	"time"

	"github.com/pithecene-io/hopper/kusto"
)

// Backoff windows applied after a categorized streaming failure.
const (
	// DefaultTimeUntilResumingStreaming is how long a table stays on the
	// queued path after streaming was found disabled or unconfigured.
	DefaultTimeUntilResumingStreaming = 15 * time.Minute
	// DefaultThrottleBackoff is how long a table stays on the queued path
	// after a throttling rejection.
	DefaultThrottleBackoff = 10 * time.Second
)

// tableKey identifies one ingestion target.
type tableKey struct {
	database string
	table    string
}

// suspension is one table's active no-streaming window.
type suspension struct {
	category Category
	resetAt  time.Time
}

// ErrorState remembers recent streaming failures per (database, table) so
// the managed router can route around conditions that outlive a single
// request. Safe for concurrent use.
//
// Each managed client owns one; clients ingesting into the same cluster may
// share an instance to pool their observations.
type ErrorState struct {
	timeUntilResuming time.Duration
	throttleBackoff   time.Duration

	now func() time.Time

	entries sync.Map // tableKey -> *suspension
}

// StateOption configures an ErrorState.
type StateOption func(*ErrorState)

// WithTimeUntilResumingStreaming overrides the window applied when
// streaming is disabled or the table has no streaming policy.
func WithTimeUntilResumingStreaming(d time.Duration) StateOption {
	return func(s *ErrorState) { s.timeUntilResuming = d }
}

// WithThrottleBackoff overrides the window applied after throttling.
func WithThrottleBackoff(d time.Duration) StateOption {
	return func(s *ErrorState) { s.throttleBackoff = d }
}

// NewErrorState returns an empty ErrorState with the default windows.
func NewErrorState(opts ...StateOption) *ErrorState {
	s := &ErrorState{
		timeUntilResuming: DefaultTimeUntilResumingStreaming,
		throttleBackoff:   DefaultThrottleBackoff,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// window maps a category to its backoff. Zero means the category leaves no
// state behind: request-property rejections are the caller's to fix, and
// unclassified failures are handled by the per-request retry policy.
func (s *ErrorState) window(c Category) time.Duration {
	switch c {
	case CategoryStreamingOff, CategoryTableConfiguration:
		return s.timeUntilResuming
	case CategoryThrottled:
		return s.throttleBackoff
	default:
		return 0
	}
}

// Record notes a categorized streaming failure against the table. It
// returns the expiry of the window now in effect, or false when the
// category sets none. Windows only ever widen: a late callback carrying a
// shorter window never shortens one already in place.
func (s *ErrorState) Record(database, table string, category Category) (time.Time, bool) {
	d := s.window(category)
	if d <= 0 {
		return time.Time{}, false
	}
	key := tableKey{database: database, table: table}
	next := &suspension{category: category, resetAt: s.now().Add(d)}
	for {
		prev, loaded := s.entries.LoadOrStore(key, next)
		if !loaded {
			return next.resetAt, true
		}
		cur := prev.(*suspension)
		if !next.resetAt.After(cur.resetAt) {
			return cur.resetAt, true
		}
		if s.entries.CompareAndSwap(key, prev, next) {
			return next.resetAt, true
		}
	}
}

// ShouldUseQueued reports whether requests for the table must skip
// streaming because a failure window is still open. When streaming is off
// for the table and continueWhenUnavailable is false, it returns a
// permanent error instead: the caller asked not to fall back silently.
func (s *ErrorState) ShouldUseQueued(database, table string, continueWhenUnavailable bool) (bool, error) {
	key := tableKey{database: database, table: table}
	v, ok := s.entries.Load(key)
	if !ok {
		return false, nil
	}
	cur := v.(*suspension)
	if !s.now().Before(cur.resetAt) {
		// Window elapsed; streaming is worth another try.
		s.entries.CompareAndDelete(key, v)
		return false, nil
	}
	if cur.category == CategoryStreamingOff && !continueWhenUnavailable {
		return false, kusto.ClientErrorf("streaming ingestion is disabled for %s.%s and queued fallback is not enabled", database, table)
	}
	return true, nil
}
