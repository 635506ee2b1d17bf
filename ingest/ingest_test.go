package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/types"
)

// fakeIngestor records what it is handed and answers with a canned
// operation per source.
type fakeIngestor struct {
	mu      sync.Mutex
	failFor map[string]error
	delay   time.Duration

	calls    int
	inflight int
	maxSeen  int
	sources  []types.Source
	props    []types.IngestionProperties
}

func (f *fakeIngestor) Ingest(_ context.Context, src types.Source, opts ...Option) (*types.IngestOperation, error) {
	f.mu.Lock()
	f.calls++
	f.inflight++
	if f.inflight > f.maxSeen {
		f.maxSeen = f.inflight
	}
	f.sources = append(f.sources, src)
	f.props = append(f.props, applyOptions(types.IngestionProperties{}, opts))
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if err, ok := f.failFor[src.Name()]; ok {
		return nil, err
	}
	return &types.IngestOperation{ID: src.ID(), Method: types.MethodQueued}, nil
}

func (f *fakeIngestor) Close() error { return nil }

func TestApplyOptions_LastWriteWins(t *testing.T) {
	defaults := types.IngestionProperties{Database: "db1", Table: "t1"}

	got := applyOptions(defaults, []Option{
		Table("t2"),
		WithProperties(types.IngestionProperties{Database: "db3", Table: "t3"}),
		Format(types.FormatJSON),
	})
	if got.Database != "db3" || got.Table != "t3" {
		t.Errorf("destination = %s.%s, want the wholesale replacement db3.t3", got.Database, got.Table)
	}
	if got.Format != types.FormatJSON {
		t.Errorf("Format = %q, want later options applied on top", got.Format)
	}
}

func TestApplyOptions_DefaultsUntouched(t *testing.T) {
	defaults := types.IngestionProperties{
		Database:             "db1",
		Table:                "t1",
		AdditionalTags:       []string{"env:prod"},
		AdditionalProperties: map[string]string{"ingestionRetention": "7d"},
	}

	got := applyOptions(defaults, []Option{
		Tags("override"),
		AdditionalProperty("creationTimeUtc", "x"),
	})

	if len(got.AdditionalTags) != 1 || got.AdditionalTags[0] != "override" {
		t.Errorf("call tags = %v, want [override]", got.AdditionalTags)
	}
	if len(defaults.AdditionalTags) != 1 || defaults.AdditionalTags[0] != "env:prod" {
		t.Errorf("default tags = %v, want them untouched", defaults.AdditionalTags)
	}
	if _, ok := defaults.AdditionalProperties["creationTimeUtc"]; ok {
		t.Error("per-call property leaked into the default property map")
	}
	if got.AdditionalProperties["ingestionRetention"] != "7d" {
		t.Error("call properties lost the default entry")
	}
}

func TestValidationPolicyOptionCopies(t *testing.T) {
	vp := types.ValidationPolicy{Options: types.ValidationConstantColumns}
	got := applyOptions(types.IngestionProperties{}, []Option{ValidationPolicy(vp)})

	vp.Options = types.ValidationColumnLevelOnly
	if got.ValidationPolicy.Options != types.ValidationConstantColumns {
		t.Error("validation policy aliases the caller's value")
	}
}

func TestNew_RejectsUntrustedEndpoint(t *testing.T) {
	if _, err := New("https://kusto.evil.example.com", kusto.StaticToken("t")); err == nil {
		t.Fatal("New() with an untrusted host: want error, got nil")
	}
	if _, err := NewStreaming("https://kusto.evil.example.com", kusto.StaticToken("t")); err == nil {
		t.Fatal("NewStreaming() with an untrusted host: want error, got nil")
	}
	if _, err := NewManaged("https://kusto.evil.example.com", kusto.StaticToken("t")); err == nil {
		t.Fatal("NewManaged() with an untrusted host: want error, got nil")
	}
}

func TestNewStreaming_NormalizesToEngineEndpoint(t *testing.T) {
	s, err := NewStreaming("https://ingest-demo.kusto.windows.net", kusto.StaticToken("t"))
	if err != nil {
		t.Fatalf("NewStreaming() error = %v", err)
	}
	engine, ok := s.client.(*kusto.Client)
	if !ok {
		t.Fatalf("client is %T, want *kusto.Client", s.client)
	}
	if got := engine.Endpoint(); got != "https://demo.kusto.windows.net" {
		t.Errorf("Endpoint() = %q, want the engine form", got)
	}
}

func TestNewManaged_BuildsBothPaths(t *testing.T) {
	m, err := NewManaged("https://demo.kusto.windows.net", kusto.StaticToken("t"),
		WithDefaultDatabase("db1"), WithDefaultTable("t1"))
	if err != nil {
		t.Fatalf("NewManaged() error = %v", err)
	}
	defer m.Close()

	if m.streaming == nil || m.queued == nil {
		t.Fatal("managed client missing a path")
	}
	if m.props.Database != "db1" || m.props.Table != "t1" {
		t.Errorf("defaults = %s.%s, want db1.t1", m.props.Database, m.props.Table)
	}
	if m.state == nil {
		t.Error("managed client has no error state")
	}
	if m.retryPol == nil {
		t.Error("managed client has no streaming retry policy")
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	ing := &fakeIngestor{}
	op, err := FromFile(context.Background(), ing, path, Database("db1"), Table("t1"))
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}
	if op == nil {
		t.Fatal("FromFile() returned a nil operation")
	}

	if len(ing.sources) != 1 {
		t.Fatalf("ingested %d sources, want 1", len(ing.sources))
	}
	fs, ok := ing.sources[0].(*types.FileSource)
	if !ok {
		t.Fatalf("source is %T, want *types.FileSource", ing.sources[0])
	}
	if fs.DataFormat() != types.FormatCSV {
		t.Errorf("format = %q, want csv inferred from the name", fs.DataFormat())
	}
	if fs.Size() != 8 {
		t.Errorf("size = %d, want 8 from the filesystem", fs.Size())
	}
	if ing.props[0].Database != "db1" || ing.props[0].Table != "t1" {
		t.Errorf("options not forwarded: %+v", ing.props[0])
	}
}

func TestFromReader(t *testing.T) {
	ing := &fakeIngestor{}
	op, err := FromReader(context.Background(), ing, "inline", strings.NewReader(`{"a":1}`), types.FormatJSON)
	if err != nil {
		t.Fatalf("FromReader() error = %v", err)
	}
	if op == nil {
		t.Fatal("FromReader() returned a nil operation")
	}

	src, ok := ing.sources[0].(*types.StreamSource)
	if !ok {
		t.Fatalf("source is %T, want *types.StreamSource", ing.sources[0])
	}
	if src.Name() != "inline" {
		t.Errorf("Name() = %q, want inline", src.Name())
	}
	if src.DataFormat() != types.FormatJSON {
		t.Errorf("format = %q, want json", src.DataFormat())
	}
}

func TestFromReader_NilReader(t *testing.T) {
	ing := &fakeIngestor{}
	if _, err := FromReader(context.Background(), ing, "inline", nil, types.FormatJSON); err == nil {
		t.Fatal("FromReader(nil): want error, got nil")
	}
	if ing.calls != 0 {
		t.Errorf("ingestor called %d times for a nil reader, want 0", ing.calls)
	}
}
