// Package ranking tracks storage account health and orders ingestion
// resources so uploads prefer accounts that have been succeeding recently.
package ranking

import "time"

// bucket accumulates outcomes observed during one time window.
type bucket struct {
	index   int64 // absolute window index, -1 when never used
	success int
	total   int
}

// Account holds the sliding success window for one storage account.
// Callers synchronize access through the owning AccountSet.
type Account struct {
	name    string
	buckets []bucket
	window  time.Duration
}

func newAccount(name string, bucketCount int, window time.Duration) *Account {
	buckets := make([]bucket, bucketCount)
	for i := range buckets {
		buckets[i].index = -1
	}
	return &Account{name: name, buckets: buckets, window: window}
}

// Name returns the storage account name.
func (a *Account) Name() string { return a.name }

func (a *Account) windowIndex(now time.Time) int64 {
	return now.UnixNano() / int64(a.window)
}

// logResult records one upload outcome in the current window. A slot left
// over from an expired window is reset before use.
func (a *Account) logResult(now time.Time, success bool) {
	idx := a.windowIndex(now)
	b := &a.buckets[idx%int64(len(a.buckets))]
	if b.index != idx {
		b.index = idx
		b.success = 0
		b.total = 0
	}
	b.total++
	if success {
		b.success++
	}
}

// rank computes the weighted success rate over the sliding window. The
// newest window weighs len(buckets), the oldest 1, and windows with no
// observations are skipped. With no observations at all the account ranks
// 1.0, so fresh accounts start fully trusted.
func (a *Account) rank(now time.Time) float64 {
	newest := a.windowIndex(now)
	n := int64(len(a.buckets))

	var sum, weights float64
	weight := float64(n)
	for idx := newest; idx > newest-n; idx-- {
		b := &a.buckets[((idx%n)+n)%n]
		if b.index == idx && b.total > 0 {
			sum += float64(b.success) / float64(b.total) * weight
			weights += weight
		}
		weight--
	}
	if weights == 0 {
		return 1.0
	}
	return sum / weights
}
