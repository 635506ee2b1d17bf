// Package kusto talks to the engine and its data-management (DM) endpoint:
// management commands, streaming ingest requests, endpoint normalization,
// and the error taxonomy shared by the ingestion paths.
package kusto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind buckets an ingestion failure by the reaction it requires.
type Kind string

// Failure kinds.
const (
	// KindClient marks input rejected at the client boundary. Permanent.
	KindClient Kind = "client"
	// KindService marks a failure reported by the engine or DM; permanence
	// follows the error envelope.
	KindService Kind = "service"
	// KindThrottled marks a rejection due to load. Transient.
	KindThrottled Kind = "throttled"
	// KindNoContainers and KindNoQueues mark an exhausted local resource
	// catalog. Transient; the next refresh may repopulate it.
	KindNoContainers Kind = "no_containers"
	KindNoQueues     Kind = "no_queues"
	// KindUpload marks a blob upload failure; Code narrows it.
	KindUpload Kind = "upload"
	// KindPermission marks an authorization failure. Permanent.
	KindPermission Kind = "permission"
	// KindCanceled marks cancellation through the caller's context.
	KindCanceled Kind = "canceled"
	// KindUnavailable marks reads attempted before any resource catalog
	// was obtained. Transient.
	KindUnavailable Kind = "unavailable"
)

// Upload and catalog failure codes carried in Error.Code.
const (
	CodeSourceNull        = "SOURCE_IS_NULL"
	CodeSourceNotReadable = "SOURCE_NOT_READABLE"
	CodeSourceEmpty       = "SOURCE_IS_EMPTY"
	CodeSizeLimitExceeded = "SOURCE_SIZE_LIMIT_EXCEEDED"
	CodeUploadFailed      = "UPLOAD_FAILED"
	CodeNetworkError      = "NETWORK_ERROR"
	CodeNoContainers      = "NO_CONTAINERS_AVAILABLE"
	CodeNoQueues          = "NO_QUEUES_AVAILABLE"
)

// Error is the structured failure surfaced by every public operation.
type Error struct {
	Kind       Kind
	Code       string
	SubCode    string
	Message    string
	Permanent  bool
	StatusCode int
	RequestID  string
	ActivityID string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("kusto: ")
	b.WriteString(string(e.Kind))
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsPermanent integrates with the retry driver: permanent errors are never
// re-attempted.
func (e *Error) IsPermanent() bool { return e.Permanent }

// ClientError marks input invalid at the boundary.
func ClientError(message string) *Error {
	return &Error{Kind: KindClient, Message: message, Permanent: true}
}

// ClientErrorf is ClientError with formatting.
func ClientErrorf(format string, args ...any) *Error {
	return ClientError(fmt.Sprintf(format, args...))
}

// UploadError classifies a blob upload failure under one of the Code
// constants. Permanence depends on the code: size and readability problems
// are the caller's to fix, network problems are worth retrying.
func UploadError(code string, err error) *Error {
	permanent := true
	switch code {
	case CodeUploadFailed, CodeNetworkError:
		permanent = false
	}
	return &Error{Kind: KindUpload, Code: code, Permanent: permanent, Err: err}
}

// NoContainersError reports an empty or exhausted container catalog.
func NoContainersError() *Error {
	return &Error{Kind: KindNoContainers, Code: CodeNoContainers, Message: "no containers available for upload"}
}

// NoQueuesError reports an empty or exhausted queue catalog.
func NoQueuesError() *Error {
	return &Error{Kind: KindNoQueues, Code: CodeNoQueues, Message: "no aggregation queues available"}
}

// CanceledError wraps a context cancellation.
func CanceledError(err error) *Error {
	return &Error{Kind: KindCanceled, Message: "operation canceled", Permanent: true, Err: err}
}

// UnavailableError reports state that has not been populated yet, such as
// reads against a resource catalog before its first refresh completed.
func UnavailableError(msg string) *Error {
	return &Error{Kind: KindUnavailable, Message: msg}
}

// errorEnvelope is the service's OneApi error body:
//
//	{"error": {"code", "message", "@type", "@message", "@context", "@permanent"}}
type errorEnvelope struct {
	Error struct {
		Code        string          `json:"code"`
		Message     string          `json:"message"`
		Type        string          `json:"@type"`
		Description string          `json:"@message"`
		Context     json.RawMessage `json:"@context"`
		Permanent   bool            `json:"@permanent"`
	} `json:"error"`
}

// ParseServiceError builds the structured error for a non-2xx engine or DM
// response. Bodies that do not carry the error envelope fall back to status
// code heuristics: 4xx (bar 429 and 408) permanent, the rest transient.
func ParseServiceError(statusCode int, body []byte, requestID, activityID string) *Error {
	e := &Error{
		Kind:       KindService,
		StatusCode: statusCode,
		RequestID:  requestID,
		ActivityID: activityID,
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Error.Code != "" || env.Error.Message != "") {
		e.Code = env.Error.Code
		e.SubCode = env.Error.Type
		e.Message = env.Error.Message
		if e.Message == "" {
			e.Message = env.Error.Description
		}
		e.Permanent = env.Error.Permanent
	} else {
		e.Message = strings.TrimSpace(string(body))
		if len(e.Message) > 256 {
			e.Message = e.Message[:256]
		}
		e.Permanent = statusCode >= 400 && statusCode < 500 &&
			statusCode != http.StatusTooManyRequests && statusCode != http.StatusRequestTimeout
	}

	switch {
	case statusCode == http.StatusTooManyRequests || strings.Contains(strings.ToLower(e.Message), "too many requests"):
		e.Kind = KindThrottled
		e.Permanent = false
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Kind = KindPermission
		e.Permanent = true
	}
	return e
}

// IsThrottled reports whether err is a throttling rejection.
func IsThrottled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindThrottled
}

// IsPermission reports whether err is an authorization failure.
func IsPermission(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindPermission
}
