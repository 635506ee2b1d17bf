package types

import (
	"time"

	"github.com/google/uuid"
)

// IngestionMethod records which transport carried an ingestion.
type IngestionMethod string

// Ingestion method constants.
const (
	MethodQueued    IngestionMethod = "queued"
	MethodStreaming IngestionMethod = "streaming"
)

// Valid reports whether m is a recognized ingestion method.
func (m IngestionMethod) Valid() bool {
	return m == MethodQueued || m == MethodStreaming
}

// StatusCounts tallies the per-source rows of an operation by state.
type StatusCounts struct {
	InProgress int `json:"in_progress"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Canceled   int `json:"canceled"`
}

// Total returns the number of counted rows.
func (c StatusCounts) Total() int {
	return c.InProgress + c.Succeeded + c.Failed + c.Canceled
}

// Done reports whether no row is still in flight.
func (c StatusCounts) Done() bool { return c.InProgress == 0 }

// IngestOperation is the client-side handle for one submitted ingestion. It
// round-trips through JSON, so a caller can persist it and poll for status
// from another process.
type IngestOperation struct {
	ID       uuid.UUID       `json:"id"`
	Method   IngestionMethod `json:"method"`
	Database string          `json:"database"`
	Table    string          `json:"table"`

	StartTime time.Time `json:"start_time"`

	// FellBackToQueued marks a managed ingestion that abandoned streaming.
	FellBackToQueued bool `json:"fell_back_to_queued,omitempty"`

	// TableURI addresses the SAS-signed status table holding this
	// operation's rows. Empty when outcomes were not reported to a table,
	// in which case the recorded statuses are final.
	TableURI string `json:"table_uri,omitempty"`

	// Statuses holds one row per source. For table-reported operations they
	// are the last retrieved snapshots.
	Statuses []StatusRow `json:"statuses"`
}

// Counts tallies the operation's rows by state.
func (o *IngestOperation) Counts() StatusCounts {
	var c StatusCounts
	for _, r := range o.Statuses {
		switch {
		case !r.Status.IsTerminal():
			c.InProgress++
		case r.Status.Succeeded():
			c.Succeeded++
		case r.Status == StatusCanceled:
			c.Canceled++
		default:
			c.Failed++
		}
	}
	return c
}

// Done reports whether every row has reached a terminal state.
func (o *IngestOperation) Done() bool {
	return o.Counts().Done()
}

// RowFor returns the status row recorded for the given source ID.
func (o *IngestOperation) RowFor(sourceID uuid.UUID) (StatusRow, bool) {
	id := sourceID.String()
	for _, r := range o.Statuses {
		if r.IngestionSourceID == id {
			return r, true
		}
	}
	return StatusRow{}, false
}
