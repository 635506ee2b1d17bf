// Package metrics provides client-side ingestion metrics collection.
//
// The Collector accumulates counters for a single client instance. It is a
// leaf package with no internal dependencies. Components hold a possibly-nil
// *Collector; every method is nil-receiver safe so callers never guard.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all client counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Streaming ingestion
	StreamingSuccesses int64
	StreamingFallbacks int64
	StreamingFailures  int64

	// Queued ingestion
	QueuedSuccesses int64
	QueuedFailures  int64

	// Blob uploads
	UploadsSucceeded int64
	UploadsFailed    int64
	UploadsRetried   int64

	// Candidate walks that ran out of healthy resources
	ContainerWalksExhausted int64
	QueueWalksExhausted     int64

	// Resource catalog refreshes
	RefreshSuccesses int64
	RefreshFailures  int64

	// Service failures keyed by error code
	FailuresByCode map[string]int64

	// Dimensions (informational, set at construction)
	Cluster  string
	ClientID string
}

// Collector accumulates metrics for a single client instance.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	// Streaming ingestion
	streamingSuccesses int64
	streamingFallbacks int64
	streamingFailures  int64

	// Queued ingestion
	queuedSuccesses int64
	queuedFailures  int64

	// Blob uploads
	uploadsSucceeded int64
	uploadsFailed    int64
	uploadsRetried   int64

	// Walk exhaustion
	containerWalksExhausted int64
	queueWalksExhausted     int64

	// Resource catalog refreshes
	refreshSuccesses int64
	refreshFailures  int64

	failuresByCode map[string]int64

	// Dimensions
	cluster  string
	clientID string
}

// NewCollector creates a Collector with dimension labels. cluster is the
// endpoint the client talks to; clientID distinguishes collectors when a
// process runs several clients against the same cluster.
func NewCollector(cluster, clientID string) *Collector {
	return &Collector{
		failuresByCode: make(map[string]int64),
		cluster:        cluster,
		clientID:       clientID,
	}
}

// --- Streaming ingestion ---

// IncStreamingSuccess records a streaming request accepted by the engine.
func (c *Collector) IncStreamingSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamingSuccesses++
	c.mu.Unlock()
}

// IncStreamingFallback records a managed ingestion that fell back to the
// queued path after streaming was skipped or failed.
func (c *Collector) IncStreamingFallback() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamingFallbacks++
	c.mu.Unlock()
}

// IncStreamingFailure records a streaming request that failed and was not
// converted into a queued ingestion.
func (c *Collector) IncStreamingFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamingFailures++
	c.mu.Unlock()
}

// --- Queued ingestion ---

// IncQueuedSuccess records a queued ingestion whose message was enqueued.
func (c *Collector) IncQueuedSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.queuedSuccesses++
	c.mu.Unlock()
}

// IncQueuedFailure records a queued ingestion that failed before enqueue.
func (c *Collector) IncQueuedFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.queuedFailures++
	c.mu.Unlock()
}

// --- Blob uploads ---
// Upload counters are per-source, not per-block. A multi-block upload of a
// single source counts as 1 success. Retries across containers within one
// source count individually via IncUploadRetried.

// IncUploadSucceeded records a source successfully staged to blob storage.
func (c *Collector) IncUploadSucceeded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.uploadsSucceeded++
	c.mu.Unlock()
}

// IncUploadFailed records a source that could not be staged to any container.
func (c *Collector) IncUploadFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.uploadsFailed++
	c.mu.Unlock()
}

// IncUploadRetried records an upload attempt that failed against one
// container and moved on to the next candidate.
func (c *Collector) IncUploadRetried() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.uploadsRetried++
	c.mu.Unlock()
}

// --- Walk exhaustion ---

// IncContainerWalkExhausted records a container walk that ran out of candidates.
func (c *Collector) IncContainerWalkExhausted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.containerWalksExhausted++
	c.mu.Unlock()
}

// IncQueueWalkExhausted records a queue walk that ran out of candidates.
func (c *Collector) IncQueueWalkExhausted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.queueWalksExhausted++
	c.mu.Unlock()
}

// --- Resource catalog refreshes ---

// IncRefreshSuccess records a completed resource catalog refresh.
func (c *Collector) IncRefreshSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.refreshSuccesses++
	c.mu.Unlock()
}

// IncRefreshFailure records a resource catalog refresh that errored.
func (c *Collector) IncRefreshFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.refreshFailures++
	c.mu.Unlock()
}

// --- Failure codes ---

// IncFailureCode records a service failure keyed by its error code, e.g.
// "Throttled" or "BadRequest_DatabaseNotExist". Empty codes are ignored.
func (c *Collector) IncFailureCode(code string) {
	if c == nil || code == "" {
		return
	}
	c.mu.Lock()
	if c.failuresByCode == nil {
		c.failuresByCode = make(map[string]int64)
	}
	c.failuresByCode[code]++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byCode := make(map[string]int64, len(c.failuresByCode))
	for k, v := range c.failuresByCode {
		byCode[k] = v
	}

	return Snapshot{
		StreamingSuccesses: c.streamingSuccesses,
		StreamingFallbacks: c.streamingFallbacks,
		StreamingFailures:  c.streamingFailures,

		QueuedSuccesses: c.queuedSuccesses,
		QueuedFailures:  c.queuedFailures,

		UploadsSucceeded: c.uploadsSucceeded,
		UploadsFailed:    c.uploadsFailed,
		UploadsRetried:   c.uploadsRetried,

		ContainerWalksExhausted: c.containerWalksExhausted,
		QueueWalksExhausted:     c.queueWalksExhausted,

		RefreshSuccesses: c.refreshSuccesses,
		RefreshFailures:  c.refreshFailures,

		FailuresByCode: byCode,

		Cluster:  c.cluster,
		ClientID: c.clientID,
	}
}
