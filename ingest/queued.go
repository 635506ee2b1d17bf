package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/hopper/azstore"
	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/metrics"
	"github.com/pithecene-io/hopper/resources"
	"github.com/pithecene-io/hopper/retry"
	"github.com/pithecene-io/hopper/types"
	"github.com/pithecene-io/hopper/upload"

	"github.com/google/uuid"
)

// resourceProvider is the slice of the resource manager the queued client
// drives: lazy startup, ranked queue reads, status table access, outcome
// feedback. *resources.Manager satisfies it.
type resourceProvider interface {
	Start(ctx context.Context) error
	Close() error
	ShuffledQueues() ([]azstore.Queue, int, error)
	StatusTable() (azstore.Table, error)
	AuthContext() (string, error)
	ReportAccountResult(account string, success bool)
}

// blobUploader stages local payloads into temp storage. *upload.Uploader
// satisfies it.
type blobUploader interface {
	Upload(ctx context.Context, src types.LocalSource, props *types.IngestionProperties) (*types.BlobSource, error)
}

// Queued ingests through the durable path: payloads are staged as blobs,
// announced on an aggregation queue, and batched by the service. Safe for
// concurrent use.
type Queued struct {
	resources resourceProvider
	uploader  blobUploader
	props     types.IngestionProperties
	logger    *log.Logger
	collector *metrics.Collector

	// ready flips once the first catalog fetch has succeeded; startMu
	// serializes the callers racing to be the one that fetches it.
	ready   atomic.Bool
	startMu sync.Mutex

	now func() time.Time
}

// New builds a queued ingestion client for the cluster at endpoint. The
// endpoint may be the engine or the DM URL; it is normalized to the DM
// form. No network traffic happens until the first Ingest call, which
// blocks on the initial resource catalog fetch.
func New(endpoint string, token kusto.TokenProvider, opts ...ClientOption) (*Queued, error) {
	o := newClientOptions(opts)

	dmURL, err := kusto.NormalizeIngestionURL(endpoint)
	if err != nil {
		return nil, err
	}
	dm, err := kusto.NewClient(dmURL, token,
		kusto.WithHTTPClient(o.httpClient), kusto.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	return newQueued(dm, o), nil
}

// newQueued wires the resource manager and uploader around an existing DM
// client. Shared with NewManaged.
func newQueued(dm *kusto.Client, o *clientOptions) *Queued {
	mgrOpts := []resources.Option{
		resources.WithHTTPClient(o.httpClient),
		resources.WithLogger(o.logger),
		resources.WithMetrics(o.collector),
	}
	if o.refresh > 0 {
		mgrOpts = append(mgrOpts, resources.WithRefreshInterval(o.refresh))
	}
	mgr := resources.NewManager(dm, mgrOpts...)

	upOpts := []upload.Option{
		upload.WithLogger(o.logger),
		upload.WithMetrics(o.collector),
	}
	if o.uploadBlockSize > 0 {
		upOpts = append(upOpts, upload.WithBlockSize(o.uploadBlockSize))
	}
	if o.uploadConcurrency > 0 {
		upOpts = append(upOpts, upload.WithConcurrency(o.uploadConcurrency))
	}
	if o.maxPayloadSize > 0 {
		upOpts = append(upOpts, upload.WithMaxSize(o.maxPayloadSize))
	}

	return &Queued{
		resources: mgr,
		uploader:  upload.NewUploader(mgr, upOpts...),
		props:     types.IngestionProperties{Database: o.database, Table: o.table},
		logger:    o.logger,
		collector: o.collector,
		now:       time.Now,
	}
}

// Ingest stages src and enqueues the ingest message. Local sources are
// uploaded first; blob sources are announced as they are and retained on
// success. The returned operation carries the Pending row recorded for the
// source.
func (q *Queued) Ingest(ctx context.Context, src types.Source, opts ...Option) (*types.IngestOperation, error) {
	op, err := q.ingest(ctx, src, opts)
	if err != nil {
		q.collector.IncQueuedFailure()
		recordFailureCode(q.collector, err)
		return nil, err
	}
	q.collector.IncQueuedSuccess()
	return op, nil
}

func (q *Queued) ingest(ctx context.Context, src types.Source, opts []Option) (*types.IngestOperation, error) {
	if src == nil {
		return nil, kusto.ClientError("nil source")
	}
	props := applyOptions(q.props, opts)
	format, err := props.Validate(src)
	if err != nil {
		return nil, kusto.ClientError(err.Error())
	}

	if err := q.ensureStarted(ctx); err != nil {
		return nil, err
	}

	blob, retain, err := q.resolveBlob(ctx, src, &props)
	if err != nil {
		return nil, err
	}

	authContext, err := q.resources.AuthContext()
	if err != nil {
		return nil, err
	}

	msg, err := newQueuedMessage(blob, format, &props, authContext, retain, q.now())
	if err != nil {
		return nil, err
	}

	op := &types.IngestOperation{
		ID:        src.ID(),
		Method:    types.MethodQueued,
		Database:  props.Database,
		Table:     props.Table,
		StartTime: q.now().UTC(),
	}

	row := pendingRow(src.ID(), blob, &props, q.now())
	if props.ReportMethod.UsesTable() {
		table, err := q.resources.StatusTable()
		if err != nil {
			return nil, err
		}
		// The row goes in before the message so the service always finds it.
		if err := table.InsertRow(ctx, row); err != nil {
			return nil, err
		}
		msg.IngestionStatusInTable = &statusTableRef{
			TableConnectionString: table.URI(),
			PartitionKey:          row.PartitionKey,
			RowKey:                row.RowKey,
		}
		op.TableURI = table.URI()
	}
	op.Statuses = []types.StatusRow{row}

	payload, err := msg.encode()
	if err != nil {
		return nil, err
	}
	if err := q.enqueue(ctx, payload); err != nil {
		return nil, err
	}

	q.logger.Info("ingestion queued", map[string]any{
		"source_id": op.ID.String(),
		"database":  props.Database,
		"table":     props.Table,
		"blob":      blob.Name(),
		"raw_bytes": msg.RawDataSize,
		"tracked":   props.ReportMethod.UsesTable(),
	})
	return op, nil
}

// Close stops the background resource refresh. In-flight ingestions are
// not interrupted.
func (q *Queued) Close() error {
	return q.resources.Close()
}

// ensureStarted runs the blocking first catalog fetch exactly once.
// Concurrent first callers wait for the same fetch; a failure leaves the
// client unstarted so the next call tries again.
func (q *Queued) ensureStarted(ctx context.Context) error {
	if q.ready.Load() {
		return nil
	}
	q.startMu.Lock()
	defer q.startMu.Unlock()
	if q.ready.Load() {
		return nil
	}
	if err := q.resources.Start(ctx); err != nil {
		return err
	}
	q.ready.Store(true)
	return nil
}

// resolveBlob turns the source into an addressable blob: local payloads go
// through the uploader, caller-supplied blobs pass through and are retained
// on success.
func (q *Queued) resolveBlob(ctx context.Context, src types.Source, props *types.IngestionProperties) (*types.BlobSource, bool, error) {
	switch s := src.(type) {
	case *types.BlobSource:
		return s, true, nil
	case types.LocalSource:
		blob, err := q.uploader.Upload(ctx, s, props)
		return blob, false, err
	default:
		return nil, false, kusto.ClientErrorf("unsupported source type %T", src)
	}
}

// enqueue posts the encoded message to the first queue that takes it,
// walking the ranked list from the assigned offset and feeding outcomes
// back into the account ranking. Permanent failures stop the walk.
func (q *Queued) enqueue(ctx context.Context, payload string) error {
	queues, start, err := q.resources.ShuffledQueues()
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < len(queues); i++ {
		if err := ctx.Err(); err != nil {
			return kusto.CanceledError(err)
		}
		qu := queues[(start+i)%len(queues)]

		err := qu.Enqueue(ctx, payload)
		q.resources.ReportAccountResult(qu.Account(), err == nil)
		if err == nil {
			return nil
		}
		if retry.IsPermanent(err) || azstore.Fatal(err) {
			return err
		}
		q.logger.Warn("queue rejected message, walking on", map[string]any{
			"queue":   qu.String(),
			"account": qu.Account(),
			"error":   err.Error(),
		})
		lastErr = err
	}

	q.collector.IncQueueWalkExhausted()
	e := kusto.NoQueuesError()
	e.Err = lastErr
	return e
}

// pendingRow is the status row recorded for a source at submission time.
func pendingRow(id uuid.UUID, blob *types.BlobSource, props *types.IngestionProperties, now time.Time) types.StatusRow {
	s := id.String()
	return types.StatusRow{
		PartitionKey:        s,
		RowKey:              s,
		Status:              types.StatusPending,
		IngestionSourceID:   s,
		Database:            props.Database,
		Table:               props.Table,
		IngestionSourcePath: blob.Name(),
		UpdatedOn:           now.UTC(),
	}
}

// recordFailureCode feeds a failure's service error code into the metrics.
func recordFailureCode(c *metrics.Collector, err error) {
	var ke *kusto.Error
	if errors.As(err, &ke) {
		c.IncFailureCode(ke.Code)
	}
}
