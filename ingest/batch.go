package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/hopper/types"
)

// DefaultBatchParallelism bounds in-flight ingestions when All is called
// with no explicit limit.
const DefaultBatchParallelism = 4

// Result pairs one source of a batch with its outcome.
type Result struct {
	Source    types.Source
	Operation *types.IngestOperation
	Err       error
}

// Failed reports whether the source's ingestion failed.
func (r Result) Failed() bool { return r.Err != nil }

// All ingests every source through ing with at most maxParallel in flight,
// returning one Result per source in input order. One source failing does
// not stop the others; callers inspect the results.
func All(ctx context.Context, ing Ingestor, sources []types.Source, maxParallel int, opts ...Option) []Result {
	if maxParallel <= 0 {
		maxParallel = DefaultBatchParallelism
	}
	results := make([]Result, len(sources))

	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			op, err := ing.Ingest(ctx, src, opts...)
			results[i] = Result{Source: src, Operation: op, Err: err}
			return nil
		})
	}
	// Workers never return errors; failures live in the results.
	_ = g.Wait()
	return results
}
