// Package ingest is the public face of the client: constructors for the
// queued, streaming and managed ingestion paths, a shared Ingestor
// interface, and per-call options layered over the client's default
// ingestion properties.
//
// New builds the queued client, the durable default. NewStreaming trades
// durability for latency on small payloads. NewManaged tries streaming
// first and falls back to the queued path when the table or cluster cannot
// take the stream.
package ingest

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/metrics"
	"github.com/pithecene-io/hopper/policy"
	"github.com/pithecene-io/hopper/retry"
	"github.com/pithecene-io/hopper/types"
)

// Ingestor is the operation shared by all three clients: submit one source
// and get back a handle for tracking it.
type Ingestor interface {
	// Ingest submits src for ingestion into the client's default database
	// and table, both overridable per call. The returned operation carries
	// the per-source status rows recorded so far.
	Ingest(ctx context.Context, src types.Source, opts ...Option) (*types.IngestOperation, error)

	// Close releases background work owned by the client. In-flight
	// ingestions are not interrupted.
	Close() error
}

// Option adjusts the ingestion properties of a single call. Options apply
// on top of the client's defaults, last write wins.
type Option func(*types.IngestionProperties)

// Database overrides the destination database for this call.
func Database(db string) Option {
	return func(p *types.IngestionProperties) { p.Database = db }
}

// Table overrides the destination table for this call.
func Table(table string) Option {
	return func(p *types.IngestionProperties) { p.Table = table }
}

// Format declares the payload format, overriding whatever the source
// declares or implies.
func Format(f types.DataFormat) Option {
	return func(p *types.IngestionProperties) { p.Format = f }
}

// IngestionMappingRef names a pre-created mapping on the destination table.
func IngestionMappingRef(name string, kind types.MappingKind) Option {
	return func(p *types.IngestionProperties) {
		p.IngestionMappingRef = name
		p.IngestionMappingKind = kind
	}
}

// IngestionMapping attaches an inline column mapping. Queued ingestion
// only; the streaming endpoint takes mapping references.
func IngestionMapping(mapping []types.ColumnMapping, kind types.MappingKind) Option {
	return func(p *types.IngestionProperties) {
		p.IngestionMapping = mapping
		p.IngestionMappingKind = kind
	}
}

// FlushImmediately asks the service to skip batching for this payload.
func FlushImmediately() Option {
	return func(p *types.IngestionProperties) { p.FlushImmediately = true }
}

// IgnoreFirstRecord drops the first record of the payload, typically a CSV
// header row.
func IgnoreFirstRecord() Option {
	return func(p *types.IngestionProperties) { p.IgnoreFirstRecord = true }
}

// IgnoreSizeLimit bypasses the client-side single-payload size cap.
func IgnoreSizeLimit() Option {
	return func(p *types.IngestionProperties) { p.IgnoreSizeLimit = true }
}

// ReportResultToTable records per-source outcomes, successes included, in
// the status table so they can be polled later.
func ReportResultToTable() Option {
	return func(p *types.IngestionProperties) {
		p.ReportLevel = types.ReportFailuresAndSuccesses
		p.ReportMethod = types.ReportToTable
	}
}

// Reporting sets the report level and method explicitly.
func Reporting(level types.ReportLevel, method types.ReportMethod) Option {
	return func(p *types.IngestionProperties) {
		p.ReportLevel = level
		p.ReportMethod = method
	}
}

// Tags replaces the plain extent tags applied to the ingested data.
func Tags(tags ...string) Option {
	return func(p *types.IngestionProperties) { p.AdditionalTags = tags }
}

// IngestByTags replaces the ingest-by: extent tags.
func IngestByTags(tags ...string) Option {
	return func(p *types.IngestionProperties) { p.IngestByTags = tags }
}

// DropByTags replaces the drop-by: extent tags.
func DropByTags(tags ...string) Option {
	return func(p *types.IngestionProperties) { p.DropByTags = tags }
}

// IngestIfNotExists skips the ingestion when extents tagged with any of the
// given values already exist.
func IngestIfNotExists(tags ...string) Option {
	return func(p *types.IngestionProperties) { p.IngestIfNotExistsTags = tags }
}

// CreationTime overrides the extent creation time recorded by the service.
func CreationTime(t time.Time) Option {
	return func(p *types.IngestionProperties) { p.CreationTime = t }
}

// ValidationPolicy attaches an engine-side input validation contract.
// Queued ingestion only.
func ValidationPolicy(vp types.ValidationPolicy) Option {
	return func(p *types.IngestionProperties) { p.ValidationPolicy = &vp }
}

// AdditionalProperty passes through an engine property this client has no
// first-class option for. The property map is copied before the write, so
// the client's defaults never see per-call values.
func AdditionalProperty(key, value string) Option {
	return func(p *types.IngestionProperties) {
		m := make(map[string]string, len(p.AdditionalProperties)+1)
		for k, v := range p.AdditionalProperties {
			m[k] = v
		}
		m[key] = value
		p.AdditionalProperties = m
	}
}

// WithProperties replaces the effective ingestion properties wholesale.
// Options after it still apply on top.
func WithProperties(props types.IngestionProperties) Option {
	return func(p *types.IngestionProperties) { *p = props }
}

// applyOptions copies the client defaults and layers the per-call options
// over them.
func applyOptions(defaults types.IngestionProperties, opts []Option) types.IngestionProperties {
	p := defaults
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// ClientOption configures a client at construction. Options that do not
// apply to the client being built are ignored: a streaming client has no
// upload tuning, a queued client no fallback policy.
type ClientOption func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	logger     *log.Logger
	collector  *metrics.Collector

	database string
	table    string

	refresh           time.Duration
	uploadBlockSize   int64
	uploadConcurrency int
	maxPayloadSize    int64

	maxStreamingSize int64
	sizeFactor       float64

	state                   *policy.ErrorState
	streamingRetry          retry.Policy
	continueWhenUnavailable bool
	onStreamingSuccess      func(database, table string)
	onStreamingError        func(database, table string, category policy.Category)
}

func newClientOptions(opts []ClientOption) *clientOptions {
	o := &clientOptions{
		logger:           log.NewNop(),
		maxStreamingSize: DefaultMaxStreamingSize,
		sizeFactor:       1.0,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		// One transport per client; every component of the client shares it.
		o.httpClient = &http.Client{}
	}
	if o.streamingRetry == nil {
		o.streamingRetry = DefaultStreamingRetry()
	}
	return o
}

// WithDefaultDatabase sets the database used when a call names none.
func WithDefaultDatabase(db string) ClientOption {
	return func(o *clientOptions) { o.database = db }
}

// WithDefaultTable sets the table used when a call names none.
func WithDefaultTable(table string) ClientOption {
	return func(o *clientOptions) { o.table = table }
}

// WithHTTPClient sets the transport shared by every component of the
// client. The default is a fresh http.Client per client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(l *log.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// WithMetrics attaches a metrics collector. Nil is fine.
func WithMetrics(c *metrics.Collector) ClientOption {
	return func(o *clientOptions) { o.collector = c }
}

// WithRefreshInterval overrides how often the resource catalog is
// re-fetched. The service's advertised hint still applies when shorter.
func WithRefreshInterval(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.refresh = d }
}

// WithUploadBlockSize overrides the block-blob block size.
func WithUploadBlockSize(n int64) ClientOption {
	return func(o *clientOptions) { o.uploadBlockSize = n }
}

// WithUploadConcurrency bounds parallel block uploads per payload.
func WithUploadConcurrency(n int) ClientOption {
	return func(o *clientOptions) { o.uploadConcurrency = n }
}

// WithMaxPayloadSize overrides the single-payload raw size cap on the
// queued path.
func WithMaxPayloadSize(n int64) ClientOption {
	return func(o *clientOptions) { o.maxPayloadSize = n }
}

// WithMaxStreamingSize overrides the streaming request body cap. The
// managed router also uses it as the routing threshold.
func WithMaxStreamingSize(n int64) ClientOption {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxStreamingSize = n
		}
	}
}

// WithDataSizeFactor scales the managed router's size threshold for
// payloads of known size. The default factor is 1.0.
func WithDataSizeFactor(f float64) ClientOption {
	return func(o *clientOptions) {
		if f > 0 {
			o.sizeFactor = f
		}
	}
}

// WithErrorState shares a streaming failure record between managed
// clients targeting the same cluster. The default is one per client.
func WithErrorState(s *policy.ErrorState) ClientOption {
	return func(o *clientOptions) { o.state = s }
}

// WithStreamingRetry replaces the managed router's streaming attempt
// spacing.
func WithStreamingRetry(p retry.Policy) ClientOption {
	return func(o *clientOptions) { o.streamingRetry = p }
}

// ContinueWhenStreamingUnavailable lets the managed router route to the
// queued path while streaming ingestion is disabled for the table, instead
// of failing the request. Off by default.
func ContinueWhenStreamingUnavailable() ClientOption {
	return func(o *clientOptions) { o.continueWhenUnavailable = true }
}

// WithOnStreamingSuccess registers a callback invoked after each streaming
// ingestion the managed router lands.
func WithOnStreamingSuccess(fn func(database, table string)) ClientOption {
	return func(o *clientOptions) { o.onStreamingSuccess = fn }
}

// WithOnStreamingError registers a callback invoked with the category of
// each classified streaming failure in the managed router.
func WithOnStreamingError(fn func(database, table string, category policy.Category)) ClientOption {
	return func(o *clientOptions) { o.onStreamingError = fn }
}

// FromFile ingests the file at path through ing, inferring format and
// compression from the file name.
func FromFile(ctx context.Context, ing Ingestor, path string, opts ...Option) (*types.IngestOperation, error) {
	src, err := types.NewFileSource(path, types.FormatFromPath(path))
	if err != nil {
		return nil, kusto.ClientError(err.Error())
	}
	return ing.Ingest(ctx, src, opts...)
}

// FromReader ingests the payload of a one-shot reader through ing. The
// payload is buffered in memory so retries and fallback can replay it;
// large payloads belong in a file or a reopenable StreamSource.
func FromReader(ctx context.Context, ing Ingestor, name string, r io.Reader, format types.DataFormat, opts ...Option) (*types.IngestOperation, error) {
	src, err := types.NewReaderSource(name, r, format)
	if err != nil {
		return nil, kusto.ClientError(err.Error())
	}
	return ing.Ingest(ctx, src, opts...)
}
