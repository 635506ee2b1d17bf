package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/metrics"
	"github.com/pithecene-io/hopper/types"
)

type fakeStreamer struct {
	errs  []error
	calls int

	gotDB         string
	gotTable      string
	gotBody       []byte
	gotFormat     types.DataFormat
	gotMapping    string
	gotCompressed bool
}

func (f *fakeStreamer) StreamIngest(_ context.Context, db, table string, body io.Reader, format types.DataFormat, mappingName string, compressed bool) error {
	f.calls++
	f.gotDB, f.gotTable = db, table
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.gotBody = b
	f.gotFormat = format
	f.gotMapping = mappingName
	f.gotCompressed = compressed
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func newTestStreaming(str streamer) *Streaming {
	return &Streaming{
		client:  str,
		props:   types.IngestionProperties{Database: "db1", Table: "t1"},
		maxSize: DefaultMaxStreamingSize,
		logger:  log.NewNop(),
		now:     func() time.Time { return testClock },
	}
}

func gzipBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(data)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func gunzip(t *testing.T, data []byte) string {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("body is not gzip: %v", err)
	}
	b, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	return string(b)
}

func TestStreaming_CompressesTextPayload(t *testing.T) {
	str := &fakeStreamer{}
	s := newTestStreaming(str)

	const data = "a,b\n1,2\n"
	src := streamSource(t, "events.csv", data)
	op, err := s.Ingest(context.Background(), src)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if str.gotDB != "db1" || str.gotTable != "t1" {
		t.Errorf("destination = %s.%s, want db1.t1", str.gotDB, str.gotTable)
	}
	if !str.gotCompressed {
		t.Error("compressed = false, want true for a text payload")
	}
	if got := gunzip(t, str.gotBody); got != data {
		t.Errorf("body = %q, want %q", got, data)
	}
	if str.gotFormat != types.FormatCSV {
		t.Errorf("format = %q, want csv", str.gotFormat)
	}

	if op.Method != types.MethodStreaming {
		t.Errorf("Method = %q, want streaming", op.Method)
	}
	if len(op.Statuses) != 1 || op.Statuses[0].Status != types.StatusSucceeded {
		t.Fatalf("Statuses = %+v, want one Succeeded row", op.Statuses)
	}
	if !op.Done() {
		t.Error("Done() = false for a streamed payload, want true")
	}
}

func TestStreaming_PreCompressedPassesThrough(t *testing.T) {
	str := &fakeStreamer{}
	s := newTestStreaming(str)

	raw := gzipBytes(t, "a,b\n1,2\n")
	src, err := types.NewReaderSource("events.csv.gz", bytes.NewReader(raw),
		types.FormatCSV, types.WithCompression(types.CompressionGzip))
	if err != nil {
		t.Fatalf("NewReaderSource() error = %v", err)
	}

	if _, err := s.Ingest(context.Background(), src); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !bytes.Equal(str.gotBody, raw) {
		t.Error("pre-gzipped body was re-encoded, want it passed through untouched")
	}
	if !str.gotCompressed {
		t.Error("compressed = false for a gzip payload, want true")
	}
}

func TestStreaming_BinaryFormatNotCompressed(t *testing.T) {
	str := &fakeStreamer{}
	s := newTestStreaming(str)

	raw := "PAR1 fake parquet bytes"
	src, err := types.NewReaderSource("events.parquet", strings.NewReader(raw), types.FormatParquet)
	if err != nil {
		t.Fatalf("NewReaderSource() error = %v", err)
	}

	if _, err := s.Ingest(context.Background(), src); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if str.gotCompressed {
		t.Error("compressed = true for a binary format, want false")
	}
	if string(str.gotBody) != raw {
		t.Errorf("body = %q, want %q", str.gotBody, raw)
	}
}

func TestStreaming_MappingReferencePassed(t *testing.T) {
	str := &fakeStreamer{}
	s := newTestStreaming(str)

	src := streamSource(t, "events.csv", "a,b\n")
	if _, err := s.Ingest(context.Background(), src, IngestionMappingRef("m1", types.MappingCSV)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if str.gotMapping != "m1" {
		t.Errorf("mapping name = %q, want m1", str.gotMapping)
	}
}

func TestStreaming_PerCallDestinationOverride(t *testing.T) {
	str := &fakeStreamer{}
	s := newTestStreaming(str)

	src := streamSource(t, "events.csv", "a,b\n")
	if _, err := s.Ingest(context.Background(), src, Database("db2"), Table("t2")); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if str.gotDB != "db2" || str.gotTable != "t2" {
		t.Errorf("destination = %s.%s, want db2.t2", str.gotDB, str.gotTable)
	}
}

func TestStreaming_RejectsInlineMapping(t *testing.T) {
	str := &fakeStreamer{}
	s := newTestStreaming(str)

	src := streamSource(t, "events.csv", "a,b\n")
	_, err := s.Ingest(context.Background(), src,
		IngestionMapping([]types.ColumnMapping{{Column: "a"}}, types.MappingCSV))
	var kerr *kusto.Error
	if !errors.As(err, &kerr) || kerr.Kind != kusto.KindClient {
		t.Fatalf("Ingest() with inline mapping: error = %v, want a client error", err)
	}
	if str.calls != 0 {
		t.Errorf("StreamIngest called %d times, want 0", str.calls)
	}
}

func TestStreaming_RejectsBlobSource(t *testing.T) {
	s := newTestStreaming(&fakeStreamer{})

	blob, err := types.NewBlobSource("https://a.blob.core.windows.net/c/b.csv?sig=s", types.FormatCSV)
	if err != nil {
		t.Fatalf("NewBlobSource() error = %v", err)
	}
	_, err = s.Ingest(context.Background(), blob)
	var kerr *kusto.Error
	if !errors.As(err, &kerr) || kerr.Kind != kusto.KindClient {
		t.Fatalf("Ingest(blob) error = %v, want a client error", err)
	}
}

func TestStreaming_RejectsUnsupportedCompression(t *testing.T) {
	for _, comp := range []types.Compression{types.CompressionZstd, types.CompressionZip} {
		t.Run(string(comp), func(t *testing.T) {
			str := &fakeStreamer{}
			s := newTestStreaming(str)

			src, err := types.NewReaderSource("events.csv."+string(comp), strings.NewReader("xx"),
				types.FormatCSV, types.WithCompression(comp))
			if err != nil {
				t.Fatalf("NewReaderSource() error = %v", err)
			}
			_, err = s.Ingest(context.Background(), src)
			var kerr *kusto.Error
			if !errors.As(err, &kerr) || kerr.Kind != kusto.KindClient {
				t.Fatalf("Ingest() error = %v, want a client error", err)
			}
			if str.calls != 0 {
				t.Errorf("StreamIngest called %d times, want 0", str.calls)
			}
		})
	}
}

func TestStreaming_EmptySource(t *testing.T) {
	tests := []struct {
		name string
		src  func(t *testing.T) types.Source
	}{
		{
			name: "text payload",
			src: func(t *testing.T) types.Source {
				return streamSource(t, "empty.csv", "")
			},
		},
		{
			name: "pre-compressed payload",
			src: func(t *testing.T) types.Source {
				src, err := types.NewReaderSource("empty.csv.gz", bytes.NewReader(nil),
					types.FormatCSV, types.WithCompression(types.CompressionGzip))
				if err != nil {
					t.Fatalf("NewReaderSource() error = %v", err)
				}
				return src
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			str := &fakeStreamer{}
			s := newTestStreaming(str)

			_, err := s.Ingest(context.Background(), tt.src(t))
			var kerr *kusto.Error
			if !errors.As(err, &kerr) || kerr.Code != kusto.CodeSourceEmpty {
				t.Fatalf("Ingest() error = %v, want code %q", err, kusto.CodeSourceEmpty)
			}
			if str.calls != 0 {
				t.Errorf("StreamIngest called %d times, want 0", str.calls)
			}
		})
	}
}

func TestStreaming_BodyOverCap(t *testing.T) {
	tests := []struct {
		name string
		src  func(t *testing.T) types.Source
	}{
		{
			name: "compressed stage",
			src: func(t *testing.T) types.Source {
				// Even gzip framing alone overflows a 4 byte cap.
				return streamSource(t, "events.csv", "a,b\n1,2\n")
			},
		},
		{
			name: "pass-through stage",
			src: func(t *testing.T) types.Source {
				src, err := types.NewReaderSource("events.csv.gz",
					bytes.NewReader(gzipBytes(t, "a,b\n1,2\n")),
					types.FormatCSV, types.WithCompression(types.CompressionGzip))
				if err != nil {
					t.Fatalf("NewReaderSource() error = %v", err)
				}
				return src
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			str := &fakeStreamer{}
			s := newTestStreaming(str)
			s.maxSize = 4

			_, err := s.Ingest(context.Background(), tt.src(t))
			var kerr *kusto.Error
			if !errors.As(err, &kerr) || kerr.Code != kusto.CodeSizeLimitExceeded {
				t.Fatalf("Ingest() error = %v, want code %q", err, kusto.CodeSizeLimitExceeded)
			}
			if !kerr.Permanent {
				t.Error("size overflow not marked permanent")
			}
			if str.calls != 0 {
				t.Errorf("StreamIngest called %d times, want 0", str.calls)
			}
		})
	}
}

func TestStreaming_ServiceErrorSurfaces(t *testing.T) {
	svcErr := &kusto.Error{
		Kind:       kusto.KindService,
		Code:       "General_InternalServerError",
		Message:    "internal error",
		StatusCode: 500,
	}
	str := &fakeStreamer{errs: []error{svcErr}}
	s := newTestStreaming(str)

	_, err := s.Ingest(context.Background(), streamSource(t, "e.csv", "a\n"))
	var kerr *kusto.Error
	if !errors.As(err, &kerr) || kerr.Code != "General_InternalServerError" {
		t.Fatalf("Ingest() error = %v, want the service error", err)
	}
}

func TestStreaming_Metrics(t *testing.T) {
	c := metrics.NewCollector("https://demo.kusto.windows.net", "")
	str := &fakeStreamer{errs: []error{&kusto.Error{
		Kind: kusto.KindService, Code: "Throttled", StatusCode: 429, Message: "busy",
	}}}
	s := newTestStreaming(str)
	s.collector = c

	if _, err := s.Ingest(context.Background(), streamSource(t, "e.csv", "a\n")); err == nil {
		t.Fatal("Ingest() with throttled service: want error")
	}
	if _, err := s.Ingest(context.Background(), streamSource(t, "e.csv", "a\n")); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	snap := c.Snapshot()
	if snap.StreamingFailures != 1 || snap.StreamingSuccesses != 1 {
		t.Errorf("failures/successes = %d/%d, want 1/1", snap.StreamingFailures, snap.StreamingSuccesses)
	}
	if snap.FailuresByCode["Throttled"] != 1 {
		t.Errorf("FailuresByCode[Throttled] = %d, want 1", snap.FailuresByCode["Throttled"])
	}
}

func TestStreaming_NilSource(t *testing.T) {
	s := newTestStreaming(&fakeStreamer{})
	_, err := s.Ingest(context.Background(), nil)
	var kerr *kusto.Error
	if !errors.As(err, &kerr) || kerr.Kind != kusto.KindClient {
		t.Fatalf("Ingest(nil) error = %v, want a client error", err)
	}
}
