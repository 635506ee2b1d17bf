package types

import "time"

// OperationStatus is the service-reported state of one ingested source.
type OperationStatus string

// Operation status values as reported by the status table.
const (
	StatusPending            OperationStatus = "Pending"
	StatusQueued             OperationStatus = "Queued"
	StatusInProgress         OperationStatus = "InProgress"
	StatusSucceeded          OperationStatus = "Succeeded"
	StatusFailed             OperationStatus = "Failed"
	StatusPartiallySucceeded OperationStatus = "PartiallySucceeded"
	StatusSkipped            OperationStatus = "Skipped"
	StatusCanceled           OperationStatus = "Canceled"
)

// IsTerminal reports whether s will never change again.
func (s OperationStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusPartiallySucceeded, StatusSkipped, StatusCanceled:
		return true
	}
	return false
}

// Succeeded reports whether s is a terminal success.
func (s OperationStatus) Succeeded() bool {
	return s == StatusSucceeded || s == StatusPartiallySucceeded
}

// FailureKind classifies a terminal failure reported by the service.
type FailureKind string

// Failure kind values.
const (
	FailureUnknown   FailureKind = "Unknown"
	FailurePermanent FailureKind = "Permanent"
	FailureTransient FailureKind = "Transient"
	FailureExhausted FailureKind = "Exhausted"
)

// StatusRow is one per-source record in a status table. Field names are the
// table's column names, so the JSON casing is pinned.
type StatusRow struct {
	// PartitionKey and RowKey both carry the source ID; the row is created
	// at enqueue time and updated in place by the service.
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`

	Status        OperationStatus `json:"Status"`
	ErrorCode     string          `json:"ErrorCode,omitempty"`
	FailureStatus FailureKind     `json:"FailureStatus,omitempty"`
	Details       string          `json:"Details,omitempty"`

	IngestionSourceID string `json:"IngestionSourceId"`
	OperationID       string `json:"OperationId,omitempty"`
	ActivityID        string `json:"ActivityId,omitempty"`

	Database string `json:"Database"`
	Table    string `json:"Table"`

	// IngestionSourcePath is the payload location with any SAS query
	// removed.
	IngestionSourcePath string `json:"IngestionSourcePath,omitempty"`

	UpdatedOn time.Time `json:"UpdatedOn"`
}

// Failed reports whether the row records a terminal non-success.
func (r StatusRow) Failed() bool {
	return r.Status.IsTerminal() && !r.Status.Succeeded()
}
