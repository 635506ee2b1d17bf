package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestLogger_CarriesEndpoint(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("https://cluster.example.com").WithOutput(&buf)

	logger.Info("queued ingestion submitted", map[string]any{"source_id": "abc"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log entry is not JSON: %v\n%s", err, buf.String())
	}
	if entry["endpoint"] != "https://cluster.example.com" {
		t.Errorf("endpoint = %v, want cluster URL", entry["endpoint"])
	}
	if entry["message"] != "queued ingestion submitted" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["source_id"] != "abc" {
		t.Errorf("fields = %v, want source_id abc", entry["fields"])
	}
}

func TestLogger_WithAddsContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("").WithOutput(&buf).With(map[string]any{"database": "telemetry"})

	logger.Warn("retrying", nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["database"] != "telemetry" {
		t.Errorf("database = %v, want telemetry", entry["database"])
	}
}

func TestNewNop_Discards(t *testing.T) {
	// Must not panic with nil fields or writers.
	logger := NewNop()
	logger.Debug("ignored", nil)
	logger.Sugar().Infof("ignored %d", 1)
}
