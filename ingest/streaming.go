package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pithecene-io/hopper/iox"
	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/metrics"
	"github.com/pithecene-io/hopper/types"

	"github.com/google/uuid"
)

// DefaultMaxStreamingSize caps one streaming request body. Bigger payloads
// belong on the queued path.
const DefaultMaxStreamingSize = int64(10) * 1024 * 1024

// streamer issues the streaming ingest request. *kusto.Client satisfies it.
type streamer interface {
	StreamIngest(ctx context.Context, database, table string, body io.Reader, format types.DataFormat, mappingName string, compressed bool) error
}

// Streaming ingests through the engine's streaming endpoint: the payload
// rides the request body and is queryable as soon as the call returns. Safe
// for concurrent use.
type Streaming struct {
	client    streamer
	props     types.IngestionProperties
	maxSize   int64
	logger    *log.Logger
	collector *metrics.Collector

	now func() time.Time
}

// NewStreaming builds a streaming ingestion client for the cluster at
// endpoint. The endpoint may be the engine or the DM URL; it is normalized
// to the engine form.
func NewStreaming(endpoint string, token kusto.TokenProvider, opts ...ClientOption) (*Streaming, error) {
	o := newClientOptions(opts)

	engineURL, err := kusto.NormalizeEngineURL(endpoint)
	if err != nil {
		return nil, err
	}
	engine, err := kusto.NewClient(engineURL, token,
		kusto.WithHTTPClient(o.httpClient), kusto.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	return newStreaming(engine, o), nil
}

func newStreaming(engine *kusto.Client, o *clientOptions) *Streaming {
	return &Streaming{
		client:    engine,
		props:     types.IngestionProperties{Database: o.database, Table: o.table},
		maxSize:   o.maxStreamingSize,
		logger:    o.logger,
		collector: o.collector,
		now:       time.Now,
	}
}

// Ingest sends src through the streaming endpoint. Only local sources
// qualify, compressed at most with gzip, and the body must fit the
// configured cap. On success the payload is already ingested, so the
// operation's single status row is terminal.
func (s *Streaming) Ingest(ctx context.Context, src types.Source, opts ...Option) (*types.IngestOperation, error) {
	op, err := s.ingest(ctx, src, opts)
	if err != nil {
		s.collector.IncStreamingFailure()
		recordFailureCode(s.collector, err)
		return nil, err
	}
	s.collector.IncStreamingSuccess()
	return op, nil
}

// Close is a no-op; the streaming client owns no background work.
func (s *Streaming) Close() error { return nil }

// ingest is the metrics-free core, shared with the managed router so its
// retry loop does not inflate the failure counters.
func (s *Streaming) ingest(ctx context.Context, src types.Source, opts []Option) (*types.IngestOperation, error) {
	if src == nil {
		return nil, kusto.ClientError("nil source")
	}
	props := applyOptions(s.props, opts)
	format, err := props.Validate(src)
	if err != nil {
		return nil, kusto.ClientError(err.Error())
	}
	if len(props.IngestionMapping) > 0 {
		return nil, kusto.ClientError("streaming ingestion takes mapping references only, not inline mappings")
	}

	local, ok := src.(types.LocalSource)
	if !ok {
		return nil, kusto.ClientError("streaming ingestion requires a local source; queue blob sources instead")
	}

	body, compressed, err := s.payload(local, format)
	if err != nil {
		return nil, err
	}

	if err := s.client.StreamIngest(ctx, props.Database, props.Table,
		bytes.NewReader(body), format, props.IngestionMappingRef, compressed); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	s.logger.Info("streaming ingestion accepted", map[string]any{
		"source_id":  src.ID().String(),
		"database":   props.Database,
		"table":      props.Table,
		"body_bytes": len(body),
		"compressed": compressed,
	})
	return &types.IngestOperation{
		ID:        src.ID(),
		Method:    types.MethodStreaming,
		Database:  props.Database,
		Table:     props.Table,
		StartTime: now,
		Statuses:  []types.StatusRow{streamedRow(src.ID(), &props, now)},
	}, nil
}

// payload materializes the request body in memory, gzip-compressing
// formats that call for it. Buffering is bounded: whichever path runs, the
// body must fit the cap.
func (s *Streaming) payload(src types.LocalSource, format types.DataFormat) ([]byte, bool, error) {
	switch src.CompressionType() {
	case types.CompressionZstd, types.CompressionZip:
		return nil, false, kusto.ClientErrorf("streaming ingestion cannot carry %s payloads; use the queued client", src.CompressionType())
	}

	rc, err := src.Open()
	if err != nil {
		return nil, false, kusto.UploadError(kusto.CodeSourceNotReadable, err)
	}
	defer iox.DiscardClose(rc)

	if types.ShouldCompress(format, src.CompressionType()) {
		return s.compressBody(rc)
	}

	// Pass-through: pre-gzipped payloads and binary formats.
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rc, s.maxSize+1))
	if err != nil {
		return nil, false, kusto.UploadError(kusto.CodeSourceNotReadable, err)
	}
	if n == 0 {
		return nil, false, kusto.UploadError(kusto.CodeSourceEmpty, nil)
	}
	if n > s.maxSize {
		return nil, false, s.bodyTooLarge()
	}
	return buf.Bytes(), src.CompressionType() == types.CompressionGzip, nil
}

// compressBody gzips the source into a capped buffer.
func (s *Streaming) compressBody(r io.Reader) ([]byte, bool, error) {
	counter := iox.NewCountingReader(r)
	buf := &capBuffer{limit: s.maxSize}
	gz := gzip.NewWriter(buf)

	if _, err := io.Copy(gz, counter); err != nil {
		return nil, false, s.stageError(err)
	}
	if err := gz.Close(); err != nil {
		return nil, false, s.stageError(err)
	}
	// The gzip framing is non-empty even for empty input, so emptiness is
	// judged on the bytes read.
	if counter.Count() == 0 {
		return nil, false, kusto.UploadError(kusto.CodeSourceEmpty, nil)
	}
	return buf.Bytes(), true, nil
}

func (s *Streaming) stageError(err error) error {
	if errors.Is(err, errBodyTooLarge) {
		return s.bodyTooLarge()
	}
	return kusto.UploadError(kusto.CodeSourceNotReadable, err)
}

func (s *Streaming) bodyTooLarge() error {
	return &kusto.Error{
		Kind:      kusto.KindClient,
		Code:      kusto.CodeSizeLimitExceeded,
		Message:   fmt.Sprintf("request body exceeds the %d byte streaming cap", s.maxSize),
		Permanent: true,
	}
}

// errBodyTooLarge aborts compression once the staged body passes the cap.
var errBodyTooLarge = errors.New("ingest: streaming body over the size cap")

// capBuffer is a write buffer that refuses to grow past a limit.
type capBuffer struct {
	buf   bytes.Buffer
	limit int64
}

func (b *capBuffer) Write(p []byte) (int, error) {
	if int64(b.buf.Len())+int64(len(p)) > b.limit {
		return 0, errBodyTooLarge
	}
	return b.buf.Write(p)
}

func (b *capBuffer) Bytes() []byte { return b.buf.Bytes() }

// streamedRow is the terminal row synthesized for a payload the engine
// accepted synchronously.
func streamedRow(id uuid.UUID, props *types.IngestionProperties, now time.Time) types.StatusRow {
	s := id.String()
	return types.StatusRow{
		PartitionKey:      s,
		RowKey:            s,
		Status:            types.StatusSucceeded,
		IngestionSourceID: s,
		Database:          props.Database,
		Table:             props.Table,
		UpdatedOn:         now,
	}
}
