package ingest

import (
	"context"
	"io"
	"time"

	"github.com/pithecene-io/hopper/iox"
	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/metrics"
	"github.com/pithecene-io/hopper/policy"
	"github.com/pithecene-io/hopper/retry"
	"github.com/pithecene-io/hopper/types"
)

// DefaultStreamingRetry spaces the managed router's streaming attempts:
// an immediate retry, then exponentially widening waits.
func DefaultStreamingRetry() retry.Policy {
	return retry.Intervals(0, time.Second, 2*time.Second, 4*time.Second, 8*time.Second, 16*time.Second)
}

// Managed routes each ingestion to streaming or queued: small local
// payloads stream, everything else queues, and classified streaming
// failures move the table onto the queued path for a while. Safe for
// concurrent use.
type Managed struct {
	streaming *Streaming
	queued    *Queued

	props types.IngestionProperties

	state      *policy.ErrorState
	retryPol   retry.Policy
	maxSize    int64
	sizeFactor float64

	// continueWhenUnavailable keeps requests flowing to the queued path
	// while streaming ingestion is disabled for the table. When false, such
	// requests fail instead of silently changing latency class.
	continueWhenUnavailable bool

	onSuccess func(database, table string)
	onError   func(database, table string, category policy.Category)

	logger    *log.Logger
	collector *metrics.Collector
}

// NewManaged builds a managed ingestion client for the cluster at endpoint.
// Either the engine or the DM URL works; the client derives both forms.
func NewManaged(endpoint string, token kusto.TokenProvider, opts ...ClientOption) (*Managed, error) {
	o := newClientOptions(opts)

	engineURL, err := kusto.NormalizeEngineURL(endpoint)
	if err != nil {
		return nil, err
	}
	dmURL, err := kusto.NormalizeIngestionURL(endpoint)
	if err != nil {
		return nil, err
	}

	engine, err := kusto.NewClient(engineURL, token,
		kusto.WithHTTPClient(o.httpClient), kusto.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	dm, err := kusto.NewClient(dmURL, token,
		kusto.WithHTTPClient(o.httpClient), kusto.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	state := o.state
	if state == nil {
		state = policy.NewErrorState()
	}

	return &Managed{
		streaming:               newStreaming(engine, o),
		queued:                  newQueued(dm, o),
		props:                   types.IngestionProperties{Database: o.database, Table: o.table},
		state:                   state,
		retryPol:                o.streamingRetry,
		maxSize:                 o.maxStreamingSize,
		sizeFactor:              o.sizeFactor,
		continueWhenUnavailable: o.continueWhenUnavailable,
		onSuccess:               o.onStreamingSuccess,
		onError:                 o.onStreamingError,
		logger:                  o.logger,
		collector:               o.collector,
	}, nil
}

// Ingest routes src per the managed policy. Operations that end up on the
// queued path after a streaming failure carry FellBackToQueued.
func (m *Managed) Ingest(ctx context.Context, src types.Source, opts ...Option) (*types.IngestOperation, error) {
	if src == nil {
		return nil, kusto.ClientError("nil source")
	}
	props := applyOptions(m.props, opts)
	if _, err := props.Validate(src); err != nil {
		return nil, kusto.ClientError(err.Error())
	}

	// Blob sources and zstd/zip payloads never stream; routing them to the
	// queue is the normal path, not a fallback.
	local, streamable := streamableSource(src)
	if !streamable {
		return m.queue(ctx, src, props, false)
	}

	over, err := m.overStreamingLimit(local)
	if err != nil {
		return nil, err
	}
	if over {
		return m.queue(ctx, src, props, false)
	}

	useQueued, err := m.state.ShouldUseQueued(props.Database, props.Table, m.continueWhenUnavailable)
	if err != nil {
		return nil, err
	}
	if useQueued {
		return m.queue(ctx, src, props, true)
	}

	op, serr := m.tryStreaming(ctx, src, props)
	if serr == nil {
		m.collector.IncStreamingSuccess()
		if m.onSuccess != nil {
			m.onSuccess(props.Database, props.Table)
		}
		return op, nil
	}
	if ctx.Err() != nil {
		return nil, kusto.CanceledError(ctx.Err())
	}

	category := policy.Categorize(serr)
	if m.onError != nil {
		m.onError(props.Database, props.Table, category)
	}
	if resetAt, set := m.state.Record(props.Database, props.Table, category); set {
		m.logger.Warn("streaming suspended for table", map[string]any{
			"database": props.Database,
			"table":    props.Table,
			"category": category.String(),
			"until":    resetAt.UTC().Format(time.RFC3339),
		})
	}

	fallback := false
	switch category {
	case policy.CategoryTableConfiguration, policy.CategoryThrottled:
		fallback = true
	case policy.CategoryStreamingOff:
		fallback = m.continueWhenUnavailable
	case policy.CategoryOther, policy.CategoryUnknown:
		fallback = !retry.IsPermanent(serr)
	}
	if !fallback {
		m.collector.IncStreamingFailure()
		recordFailureCode(m.collector, serr)
		return nil, serr
	}

	m.logger.Info("falling back to queued ingestion", map[string]any{
		"source_id": src.ID().String(),
		"database":  props.Database,
		"table":     props.Table,
		"category":  category.String(),
	})
	return m.queue(ctx, src, props, true)
}

// Close stops the queued client's background work.
func (m *Managed) Close() error {
	return m.queued.Close()
}

// tryStreaming drives the streaming attempts under the configured retry
// policy. Only unclassified transient failures are re-attempted; the named
// categories take their answer from the error state instead.
func (m *Managed) tryStreaming(ctx context.Context, src types.Source, props types.IngestionProperties) (*types.IngestOperation, error) {
	var op *types.IngestOperation
	err := retry.Do(ctx, m.retryPol, func() error {
		var aerr error
		op, aerr = m.streaming.ingest(ctx, src, []Option{WithProperties(props)})
		return aerr
	},
		retry.WithShouldRetry(func(err error) bool {
			return policy.Categorize(err).Retryable()
		}),
		retry.WithOnRetry(func(err error, next time.Duration) {
			m.logger.Warn("streaming attempt failed, retrying", map[string]any{
				"database": props.Database,
				"table":    props.Table,
				"error":    err.Error(),
				"retry_in": next.String(),
			})
		}),
	)
	if err != nil {
		return nil, err
	}
	return op, nil
}

// queue hands the request to the queued client, marking the fallback when
// streaming was skipped because of an error rather than routing.
func (m *Managed) queue(ctx context.Context, src types.Source, props types.IngestionProperties, fellBack bool) (*types.IngestOperation, error) {
	op, err := m.queued.Ingest(ctx, src, WithProperties(props))
	if err != nil {
		return nil, err
	}
	if fellBack {
		op.FellBackToQueued = true
		m.collector.IncStreamingFallback()
	}
	return op, nil
}

// streamableSource reports whether src can ride the streaming endpoint:
// local bytes, compressed at most with gzip.
func streamableSource(src types.Source) (types.LocalSource, bool) {
	local, ok := src.(types.LocalSource)
	if !ok {
		return nil, false
	}
	switch src.CompressionType() {
	case types.CompressionNone, types.CompressionGzip:
		return local, true
	}
	return nil, false
}

// overStreamingLimit reports whether the payload is too big to stream. A
// declared size is checked against the scaled threshold; unknown sizes are
// probed by reading one byte past the unscaled cap.
func (m *Managed) overStreamingLimit(src types.LocalSource) (bool, error) {
	if size := src.Size(); size > 0 {
		return float64(size) > float64(m.maxSize)*m.sizeFactor, nil
	}

	rc, err := src.Open()
	if err != nil {
		return false, kusto.UploadError(kusto.CodeSourceNotReadable, err)
	}
	defer iox.DiscardClose(rc)

	n, err := io.Copy(io.Discard, io.LimitReader(rc, m.maxSize+1))
	if err != nil {
		return false, kusto.UploadError(kusto.CodeSourceNotReadable, err)
	}
	return n > m.maxSize, nil
}
