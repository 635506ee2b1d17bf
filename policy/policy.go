// Package policy decides when managed ingestion should bypass streaming.
// It classifies streaming ingest failures into categories and keeps a
// per-table record of recent failures so that subsequent requests go
// straight to the aggregation queue while the condition lasts.
package policy

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pithecene-io/hopper/kusto"
)

// Category names the cause of a streaming ingest failure. The category
// decides whether the request is retried, queued, or surfaced as-is.
type Category string

const (
	// CategoryRequestProperties marks a request whose ingestion properties
	// the streaming endpoint rejects outright. Permanent; queueing the same
	// request would fail the same way.
	CategoryRequestProperties Category = "REQUEST_PROPERTIES_PREVENT_STREAMING"
	// CategoryTableConfiguration marks a table without a streaming
	// ingestion policy. Permanent for the table until reconfigured.
	CategoryTableConfiguration Category = "TABLE_CONFIGURATION_PREVENTS_STREAMING"
	// CategoryStreamingOff marks a cluster or table with streaming
	// ingestion disabled.
	CategoryStreamingOff Category = "STREAMING_INGESTION_OFF"
	// CategoryThrottled marks a load-based rejection.
	CategoryThrottled Category = "THROTTLED"
	// CategoryOther marks a recognized service failure without a
	// streaming-specific signature.
	CategoryOther Category = "OTHER_ERRORS"
	// CategoryUnknown marks a failure the client cannot classify at all.
	CategoryUnknown Category = "UNKNOWN_ERRORS"
)

// Error codes and message fragments the engine uses to reject streaming
// ingest requests.
const (
	codeMissingStreamingProperty = "BadRequest_MissingStreamingIngestionProperty"
	codeInvalidStreamingRequest  = "BadRequest_InvalidStreamingIngestRequest"
	codeGeneralBadRequest        = "General_BadRequest"

	msgStreamingPolicy   = "streaming ingestion policy"
	msgStreamingDisabled = "streaming ingestion is disabled"
)

// Categorize classifies a streaming ingest failure. Anything that is not a
// *kusto.Error is CategoryUnknown; recognized errors without a
// streaming-specific signature are CategoryOther.
func Categorize(err error) Category {
	var ke *kusto.Error
	if !errors.As(err, &ke) {
		return CategoryUnknown
	}
	msg := strings.ToLower(ke.Message)
	switch {
	case ke.Code == codeMissingStreamingProperty || ke.Code == codeInvalidStreamingRequest:
		return CategoryRequestProperties
	case ke.Code == codeGeneralBadRequest && strings.Contains(msg, msgStreamingPolicy):
		return CategoryTableConfiguration
	case strings.Contains(msg, msgStreamingDisabled):
		return CategoryStreamingOff
	case ke.Kind == kusto.KindThrottled || ke.StatusCode == http.StatusTooManyRequests:
		return CategoryThrottled
	default:
		return CategoryOther
	}
}

// Retryable reports whether another immediate streaming attempt may succeed.
// Only unclassified failures are worth retrying; the named categories are
// either permanent for the table or subject to a backoff window.
func (c Category) Retryable() bool {
	return c == CategoryOther || c == CategoryUnknown
}

func (c Category) String() string { return string(c) }
