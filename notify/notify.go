// Package notify defines the boundary for publishing terminal ingestion
// outcomes to downstream systems.
//
// Notifiers carry one OperationEvent per finished operation. The caller
// owns notifier lifecycle and decides when an operation counts as
// finished, typically after polling its status to a terminal state.
package notify

import (
	"context"
	"time"

	"github.com/pithecene-io/hopper/types"
)

// SchemaVersion is the event payload version stamped on every event.
const SchemaVersion = "1"

// EventTypeIngestionCompleted is the event_type of an OperationEvent.
const EventTypeIngestionCompleted = "ingestion_completed"

// Outcome summarizes an operation's per-source results.
type Outcome string

// Outcome values.
const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomePartial   Outcome = "partial"
	OutcomePending   Outcome = "pending"
)

// OperationEvent is the payload published when an ingestion operation
// finishes.
type OperationEvent struct {
	SchemaVersion string  `json:"schema_version"`
	EventType     string  `json:"event_type"` // always "ingestion_completed"
	OperationID   string  `json:"operation_id"`
	Database      string  `json:"database"`
	Table         string  `json:"table"`
	Method        string  `json:"method"` // queued or streaming
	Outcome       Outcome `json:"outcome"`

	// FellBackToQueued marks a managed ingestion that abandoned streaming.
	FellBackToQueued bool `json:"fell_back_to_queued,omitempty"`

	Sources   int `json:"sources"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`

	StartedAt   string `json:"started_at"`   // RFC 3339
	CompletedAt string `json:"completed_at"` // RFC 3339
	DurationMs  int64  `json:"duration_ms"`
}

// Notifier publishes operation events to a downstream system.
type Notifier interface {
	// Publish sends one event. Implementations must respect context
	// cancellation and deadlines.
	Publish(ctx context.Context, event *OperationEvent) error

	// Close releases notifier resources.
	Close() error
}

// NewOperationEvent derives the event for op as of completedAt, tallying
// the operation's recorded status rows.
func NewOperationEvent(op *types.IngestOperation, completedAt time.Time) *OperationEvent {
	counts := op.Counts()
	completedAt = completedAt.UTC()

	e := &OperationEvent{
		SchemaVersion:    SchemaVersion,
		EventType:        EventTypeIngestionCompleted,
		OperationID:      op.ID.String(),
		Database:         op.Database,
		Table:            op.Table,
		Method:           string(op.Method),
		Outcome:          outcomeOf(counts),
		FellBackToQueued: op.FellBackToQueued,
		Sources:          counts.Total(),
		Succeeded:        counts.Succeeded,
		Failed:           counts.Failed,
		Canceled:         counts.Canceled,
		StartedAt:        op.StartTime.UTC().Format(time.RFC3339),
		CompletedAt:      completedAt.Format(time.RFC3339),
	}
	if !op.StartTime.IsZero() {
		e.DurationMs = completedAt.Sub(op.StartTime.UTC()).Milliseconds()
	}
	return e
}

// outcomeOf folds status counts into a single outcome. Operations with
// rows still in flight, or none recorded at all, are pending.
func outcomeOf(c types.StatusCounts) Outcome {
	switch {
	case c.Total() == 0 || !c.Done():
		return OutcomePending
	case c.Failed == 0 && c.Canceled == 0:
		return OutcomeSucceeded
	case c.Succeeded == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}
