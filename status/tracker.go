// Package status reads back the per-source outcomes of submitted
// ingestions. Operations that reported to a status table are refreshed row
// by row; queue-only operations carry their enqueue-time snapshots, which
// are all the service ever exposes for them.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/hopper/azstore"
	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/types"
)

// DefaultPollInterval paces Wait between status table reads.
const DefaultPollInterval = 10 * time.Second

// Tracker refreshes ingestion operation handles against their status
// tables. A zero-config tracker is ready to use; it only needs network
// access to the SAS-signed table URI embedded in the handle.
type Tracker struct {
	httpClient *http.Client
	logger     *log.Logger

	newTable func(ref azstore.Ref) (azstore.Table, error)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger attaches a logger. The default discards everything.
func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithHTTPClient sets the HTTP client used for table reads. Pass the
// process-wide client so all components share one transport.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tracker) { t.httpClient = c }
}

// NewTracker returns a Tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		httpClient: http.DefaultClient,
		logger:     log.NewNop(),
	}
	t.newTable = func(ref azstore.Ref) (azstore.Table, error) {
		return azstore.NewStatusTable(ref, t.httpClient)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Statuses returns the operation's per-source rows, refreshed from the
// status table when the operation reports to one. Rows already terminal are
// not re-read; the service never updates them again. The handle is updated
// in place, so persisting it afterwards stores the newest snapshot.
func (t *Tracker) Statuses(ctx context.Context, op *types.IngestOperation) ([]types.StatusRow, error) {
	if op == nil {
		return nil, kusto.ClientError("nil operation")
	}
	if op.TableURI == "" {
		return slices.Clone(op.Statuses), nil
	}

	ref, err := azstore.ParseRef(op.TableURI)
	if err != nil {
		return nil, kusto.ClientErrorf("operation status table URI: %v", err)
	}
	table, err := t.newTable(ref)
	if err != nil {
		return nil, err
	}

	for i, row := range op.Statuses {
		if row.Status.IsTerminal() {
			continue
		}
		fresh, err := table.GetRow(ctx, row.PartitionKey, row.RowKey)
		if err != nil {
			return nil, err
		}
		op.Statuses[i] = fresh
	}
	return slices.Clone(op.Statuses), nil
}

// Summary refreshes the operation and tallies its rows by state.
func (t *Tracker) Summary(ctx context.Context, op *types.IngestOperation) (types.StatusCounts, error) {
	if _, err := t.Statuses(ctx, op); err != nil {
		return types.StatusCounts{}, err
	}
	return op.Counts(), nil
}

// Wait polls the status table until every row of the operation reaches a
// terminal state, then returns the final rows. A non-positive pollInterval
// uses DefaultPollInterval. Operations that do not report to a table cannot
// make progress, so waiting on an unfinished one is an error.
func (t *Tracker) Wait(ctx context.Context, op *types.IngestOperation, pollInterval time.Duration) ([]types.StatusRow, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		rows, err := t.Statuses(ctx, op)
		if err != nil {
			return nil, err
		}
		counts := op.Counts()
		if counts.Done() {
			return rows, nil
		}
		if op.TableURI == "" {
			return nil, kusto.ClientError("operation does not report to a status table")
		}
		t.logger.Debug("ingestion still in progress", map[string]any{
			"operation":   op.ID.String(),
			"in_progress": counts.InProgress,
			"succeeded":   counts.Succeeded,
			"failed":      counts.Failed,
		})

		select {
		case <-ctx.Done():
			return nil, kusto.CanceledError(ctx.Err())
		case <-ticker.C:
		}
	}
}

// SaveOperation serializes an operation handle so the caller can persist it
// and resume polling later, possibly from another process.
func SaveOperation(op *types.IngestOperation) ([]byte, error) {
	if op == nil {
		return nil, kusto.ClientError("nil operation")
	}
	return json.MarshalIndent(op, "", "  ")
}

// LoadOperation parses a persisted operation handle.
func LoadOperation(data []byte) (*types.IngestOperation, error) {
	var op types.IngestOperation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, kusto.ClientErrorf("parse operation handle: %v", err)
	}
	if op.ID == uuid.Nil {
		return nil, kusto.ClientError("operation handle carries no id")
	}
	if !op.Method.Valid() {
		return nil, kusto.ClientErrorf("operation handle method %q unknown", op.Method)
	}
	return &op, nil
}
