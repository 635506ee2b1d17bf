package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pithecene-io/hopper/types"
)

func batchSources(t *testing.T, n int) []types.Source {
	t.Helper()
	sources := make([]types.Source, n)
	for i := range sources {
		sources[i] = streamSource(t, fmt.Sprintf("part-%d.csv", i), "a,b\n")
	}
	return sources
}

func TestAll_ResultsInInputOrder(t *testing.T) {
	ing := &fakeIngestor{}
	sources := batchSources(t, 6)

	results := All(context.Background(), ing, sources, 2)
	if len(results) != len(sources) {
		t.Fatalf("results = %d, want %d", len(results), len(sources))
	}
	for i, r := range results {
		if r.Source != sources[i] {
			t.Errorf("results[%d].Source = %v, want input order preserved", i, r.Source.Name())
		}
		if r.Failed() {
			t.Errorf("results[%d] failed: %v", i, r.Err)
		}
		if r.Operation == nil || r.Operation.ID != sources[i].ID() {
			t.Errorf("results[%d] operation does not match its source", i)
		}
	}
}

func TestAll_FailuresDoNotStopTheBatch(t *testing.T) {
	bad := errors.New("container exhausted")
	ing := &fakeIngestor{failFor: map[string]error{"part-2.csv": bad}}
	sources := batchSources(t, 5)

	results := All(context.Background(), ing, sources, 3)

	var failed int
	for i, r := range results {
		if r.Failed() {
			failed++
			if i != 2 {
				t.Errorf("results[%d] failed, want only index 2", i)
			}
			if !errors.Is(r.Err, bad) {
				t.Errorf("results[%d].Err = %v, want %v", i, r.Err, bad)
			}
			if r.Operation != nil {
				t.Errorf("results[%d] has an operation alongside its error", i)
			}
		}
	}
	if failed != 1 {
		t.Errorf("failed results = %d, want 1", failed)
	}
	if ing.calls != len(sources) {
		t.Errorf("ingest calls = %d, want %d", ing.calls, len(sources))
	}
}

func TestAll_BoundsParallelism(t *testing.T) {
	ing := &fakeIngestor{delay: 5 * time.Millisecond}
	sources := batchSources(t, 9)

	All(context.Background(), ing, sources, 3)
	if ing.maxSeen > 3 {
		t.Errorf("peak in-flight ingestions = %d, want at most 3", ing.maxSeen)
	}
	if ing.calls != len(sources) {
		t.Errorf("ingest calls = %d, want %d", ing.calls, len(sources))
	}
}

func TestAll_DefaultParallelism(t *testing.T) {
	ing := &fakeIngestor{delay: time.Millisecond}
	sources := batchSources(t, DefaultBatchParallelism*2)

	results := All(context.Background(), ing, sources, 0)
	if len(results) != len(sources) {
		t.Fatalf("results = %d, want %d", len(results), len(sources))
	}
	if ing.maxSeen > DefaultBatchParallelism {
		t.Errorf("peak in-flight ingestions = %d, want at most %d", ing.maxSeen, DefaultBatchParallelism)
	}
}

func TestAll_OptionsForwarded(t *testing.T) {
	ing := &fakeIngestor{}
	sources := batchSources(t, 3)

	All(context.Background(), ing, sources, 1, Database("db9"), FlushImmediately())
	for i, p := range ing.props {
		if p.Database != "db9" || !p.FlushImmediately {
			t.Errorf("call %d properties = %+v, want the batch options applied", i, p)
		}
	}
}

func TestAll_EmptyInput(t *testing.T) {
	ing := &fakeIngestor{}
	results := All(context.Background(), ing, nil, 4)
	if len(results) != 0 {
		t.Errorf("results = %d for no sources, want 0", len(results))
	}
	if ing.calls != 0 {
		t.Errorf("ingest calls = %d for no sources, want 0", ing.calls)
	}
}
