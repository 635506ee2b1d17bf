// Package azstore narrows the Azure storage SDKs to the operations the
// ingestion pipeline needs: block-blob upload, queue enqueue, and status
// table row access. Every resource is addressed by a SAS-authorized URL
// advertised by the DM; no account credentials ever reach this package.
package azstore

import (
	"context"
	"io"
	"strings"

	"github.com/pithecene-io/hopper/types"
)

// Ref is one SAS-authorized storage resource advertised by the DM,
// decomposed for selection and logging.
type Ref struct {
	// Raw is the advertised URL, SAS included.
	Raw string
	// Endpoint is the URL up to the first '?', SAS excluded.
	Endpoint string
	// SAS is the query string after the first '?', never logged.
	SAS string
	// Account is the storage account, taken from the first host label.
	Account string
	// Name is the container/queue/table name, the last path segment.
	Name string
}

// ParseRef splits an advertised resource URL into its endpoint and SAS
// parts. The split happens at the first '?' so signatures containing
// further question marks survive.
func ParseRef(raw string) (Ref, error) {
	if raw == "" {
		return Ref{}, errRefEmpty
	}
	endpoint, sas, _ := strings.Cut(raw, "?")

	rest, ok := strings.CutPrefix(endpoint, "https://")
	if !ok {
		rest, ok = strings.CutPrefix(endpoint, "http://")
	}
	if !ok || rest == "" {
		return Ref{}, errRefScheme(raw)
	}

	host, path, _ := strings.Cut(rest, "/")
	account, _, _ := strings.Cut(host, ".")
	name := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		name = path[i+1:]
	}
	if account == "" || name == "" {
		return Ref{}, errRefShape(raw)
	}

	return Ref{
		Raw:      raw,
		Endpoint: endpoint,
		SAS:      sas,
		Account:  account,
		Name:     name,
	}, nil
}

// String returns the endpoint without the SAS, safe for logs.
func (r Ref) String() string { return r.Endpoint }

// UploadOptions tune one blob upload.
type UploadOptions struct {
	// BlockSize is the size of each uploaded block in bytes.
	BlockSize int64
	// Concurrency bounds the parallel block uploads.
	Concurrency int
}

// Container uploads blobs into one SAS-authorized container.
type Container interface {
	// Account returns the storage account the container lives in.
	Account() string
	// String returns a log-safe identifier.
	String() string
	// Upload writes body as a block blob under blobName.
	Upload(ctx context.Context, blobName string, body io.Reader, opts UploadOptions) error
	// BlobURL returns the SAS-authorized URL of a blob in this container.
	BlobURL(blobName string) string
}

// Queue posts opaque messages to one SAS-authorized queue.
type Queue interface {
	Account() string
	String() string
	// Enqueue posts one message. The caller handles any base64 wrapping.
	Enqueue(ctx context.Context, message string) error
}

// Table reads and writes ingestion status rows in one SAS-authorized table.
type Table interface {
	// URI returns the full SAS-authorized table URI, as embedded in queued
	// ingest messages.
	URI() string
	// InsertRow adds a new status row.
	InsertRow(ctx context.Context, row types.StatusRow) error
	// GetRow fetches one row by its keys.
	GetRow(ctx context.Context, partitionKey, rowKey string) (types.StatusRow, error)
}
