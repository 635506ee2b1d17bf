package types //nolint:revive // types is a valid package name

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIngestOperation_JSONRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	op := IngestOperation{
		ID:               uuid.New(),
		Method:           MethodQueued,
		Database:         "telemetry",
		Table:            "events",
		StartTime:        start,
		FellBackToQueued: true,
		TableURI:         "https://acct.table.example.com/status?sas=1",
		Statuses: []StatusRow{
			{
				PartitionKey:      "telemetry.events",
				RowKey:            "4f2e",
				Status:            StatusPending,
				IngestionSourceID: "4f2e",
				Database:          "telemetry",
				Table:             "events",
				UpdatedOn:         start,
			},
		},
	}

	b, err := json.Marshal(&op)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got IngestOperation
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.ID != op.ID || got.Method != op.Method || got.Database != op.Database || got.Table != op.Table {
		t.Errorf("identity fields did not round-trip: %+v", got)
	}
	if !got.StartTime.Equal(op.StartTime) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, op.StartTime)
	}
	if !got.FellBackToQueued {
		t.Error("FellBackToQueued lost in round trip")
	}
	if got.TableURI != op.TableURI {
		t.Errorf("TableURI = %q, want %q", got.TableURI, op.TableURI)
	}
	if len(got.Statuses) != 1 || got.Statuses[0] != op.Statuses[0] {
		t.Errorf("Statuses did not round-trip: %+v", got.Statuses)
	}
}

func TestIngestOperation_Counts(t *testing.T) {
	op := IngestOperation{
		Statuses: []StatusRow{
			{Status: StatusPending},
			{Status: StatusInProgress},
			{Status: StatusSucceeded},
			{Status: StatusPartiallySucceeded},
			{Status: StatusFailed},
			{Status: StatusSkipped},
			{Status: StatusCanceled},
		},
	}

	c := op.Counts()
	if c.InProgress != 2 {
		t.Errorf("InProgress = %d, want 2", c.InProgress)
	}
	if c.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", c.Succeeded)
	}
	if c.Failed != 2 {
		t.Errorf("Failed = %d, want 2", c.Failed)
	}
	if c.Canceled != 1 {
		t.Errorf("Canceled = %d, want 1", c.Canceled)
	}
	if c.Total() != 7 {
		t.Errorf("Total() = %d, want 7", c.Total())
	}
	if op.Done() {
		t.Error("Done() = true with pending rows")
	}
}

func TestIngestOperation_RowFor(t *testing.T) {
	id := uuid.New()
	op := IngestOperation{
		Statuses: []StatusRow{
			{RowKey: "other", IngestionSourceID: uuid.NewString()},
			{RowKey: "mine", IngestionSourceID: id.String(), Status: StatusSucceeded},
		},
	}

	row, ok := op.RowFor(id)
	if !ok {
		t.Fatal("RowFor() did not find the row")
	}
	if row.RowKey != "mine" || row.Status != StatusSucceeded {
		t.Errorf("RowFor() = %+v", row)
	}
	if _, ok := op.RowFor(uuid.New()); ok {
		t.Error("RowFor() found a row for an unknown source")
	}
}

func TestOperationStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status OperationStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusQueued, false},
		{StatusInProgress, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
		{StatusPartiallySucceeded, true},
		{StatusSkipped, true},
		{StatusCanceled, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("OperationStatus(%q).IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStatusRow_Failed(t *testing.T) {
	tests := []struct {
		status OperationStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusSucceeded, false},
		{StatusPartiallySucceeded, false},
		{StatusFailed, true},
		{StatusCanceled, true},
		{StatusSkipped, true},
	}

	for _, tt := range tests {
		row := StatusRow{Status: tt.status}
		if got := row.Failed(); got != tt.want {
			t.Errorf("StatusRow{%q}.Failed() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
