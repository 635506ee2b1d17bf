//nolint:revive // types is a common Go package naming convention
package types

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"

	"github.com/google/uuid"
)

// Source is one payload handed to the ingestion client. Exactly one concrete
// representation backs each source: a local file, an in-process stream, or a
// blob already sitting in remote storage.
type Source interface {
	// ID returns the immutable source identity assigned at construction.
	// Retries and fallbacks reuse it so the service can deduplicate.
	ID() uuid.UUID

	// DataFormat returns the declared payload format.
	DataFormat() DataFormat

	// CompressionType returns how the payload bytes are compressed.
	CompressionType() Compression

	// Name returns a short human-readable label for logs and blob naming.
	Name() string
}

// LocalSource is a Source whose bytes live on the client side and can be
// opened for reading more than once. Re-opening yields the payload from the
// beginning, which upload retries and queued fallback rely on.
type LocalSource interface {
	Source

	// Open returns a fresh reader over the payload.
	Open() (io.ReadCloser, error)

	// Size returns the payload size in bytes, or 0 when unknown.
	Size() int64
}

// sourceConfig carries the option-settable fields shared by all sources.
type sourceConfig struct {
	id          uuid.UUID
	format      DataFormat
	compression Compression
	size        int64
}

// SourceOption adjusts optional source attributes at construction.
type SourceOption func(*sourceConfig)

// WithSourceID pins the source identity instead of generating one. Callers
// re-submitting a payload pass the original ID so the service deduplicates.
func WithSourceID(id uuid.UUID) SourceOption {
	return func(c *sourceConfig) { c.id = id }
}

// WithCompression declares the payload compression, overriding any value
// inferred from the file name.
func WithCompression(ct Compression) SourceOption {
	return func(c *sourceConfig) { c.compression = ct }
}

// WithSize declares the uncompressed payload size in bytes when the caller
// knows it. Sized payloads skip the probe read on the streaming path.
func WithSize(n int64) SourceOption {
	return func(c *sourceConfig) { c.size = n }
}

func newSourceConfig(format DataFormat, opts []SourceOption) (sourceConfig, error) {
	if !format.Valid() {
		return sourceConfig{}, fmt.Errorf("types: invalid data format %q", format)
	}
	c := sourceConfig{id: uuid.New(), format: format}
	for _, opt := range opts {
		opt(&c)
	}
	if c.size < 0 {
		return sourceConfig{}, errors.New("types: negative source size")
	}
	return c, nil
}

// FileSource ingests a file on the local filesystem. Each Open returns a new
// file handle, so the payload is naturally re-readable.
type FileSource struct {
	cfg  sourceConfig
	path string
}

// NewFileSource builds a source over the file at path. Compression is
// inferred from the file name unless overridden, and the size is read from
// the filesystem unless declared.
func NewFileSource(path string, format DataFormat, opts ...SourceOption) (*FileSource, error) {
	if path == "" {
		return nil, errors.New("types: empty file path")
	}
	cfg, err := newSourceConfig(format, opts)
	if err != nil {
		return nil, err
	}
	if cfg.compression == CompressionNone {
		cfg.compression = CompressionFromPath(path)
	}
	if cfg.size == 0 {
		if fi, err := os.Stat(path); err == nil {
			cfg.size = fi.Size()
		}
	}
	return &FileSource{cfg: cfg, path: path}, nil
}

func (s *FileSource) ID() uuid.UUID                { return s.cfg.id }
func (s *FileSource) DataFormat() DataFormat       { return s.cfg.format }
func (s *FileSource) CompressionType() Compression { return s.cfg.compression }
func (s *FileSource) Size() int64                  { return s.cfg.size }
func (s *FileSource) Path() string                 { return s.path }
func (s *FileSource) Name() string                 { return s.path }

// Open opens the underlying file.
func (s *FileSource) Open() (io.ReadCloser, error) {
	return os.Open(s.path)
}

// StreamSource ingests bytes from an in-process reader. Sources built from a
// reopenable factory replay by calling it again; sources built from a
// one-shot reader are buffered in memory on first Open so later opens can
// replay the payload.
type StreamSource struct {
	cfg  sourceConfig
	name string
	open func() (io.ReadCloser, error)

	mu  sync.Mutex
	buf []byte // non-nil once a one-shot reader has been drained
	src io.Reader
}

// NewStreamSource builds a source whose payload can be re-opened on demand.
// The factory must return a fresh reader positioned at the start each call.
func NewStreamSource(name string, open func() (io.ReadCloser, error), format DataFormat, opts ...SourceOption) (*StreamSource, error) {
	if open == nil {
		return nil, errors.New("types: nil stream factory")
	}
	cfg, err := newSourceConfig(format, opts)
	if err != nil {
		return nil, err
	}
	return &StreamSource{cfg: cfg, name: name, open: open}, nil
}

// NewReaderSource builds a source over a one-shot reader. The payload is
// buffered in memory the first time it is opened; very large one-shot
// payloads should be written to a file and ingested with NewFileSource
// instead.
func NewReaderSource(name string, r io.Reader, format DataFormat, opts ...SourceOption) (*StreamSource, error) {
	if r == nil {
		return nil, errors.New("types: nil reader")
	}
	cfg, err := newSourceConfig(format, opts)
	if err != nil {
		return nil, err
	}
	return &StreamSource{cfg: cfg, name: name, src: r}, nil
}

func (s *StreamSource) ID() uuid.UUID                { return s.cfg.id }
func (s *StreamSource) DataFormat() DataFormat       { return s.cfg.format }
func (s *StreamSource) CompressionType() Compression { return s.cfg.compression }
func (s *StreamSource) Size() int64                  { return s.cfg.size }

func (s *StreamSource) Name() string {
	if s.name != "" {
		return s.name
	}
	return "stream"
}

// Open returns a fresh reader over the payload.
func (s *StreamSource) Open() (io.ReadCloser, error) {
	if s.open != nil {
		return s.open()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		b, err := io.ReadAll(s.src)
		if err != nil {
			return nil, fmt.Errorf("types: buffering stream source: %w", err)
		}
		s.buf = b
		s.src = nil
	}
	return io.NopCloser(bytes.NewReader(s.buf)), nil
}

// BlobSource ingests a blob already resident in remote storage, addressed by
// a SAS-authorized URL. No bytes move through the client.
type BlobSource struct {
	cfg sourceConfig
	url string
}

// NewBlobSource builds a source over an existing remote blob. When the
// caller knows the raw (uncompressed) byte size it should declare it with
// WithSize so the service can skip probing the blob.
func NewBlobSource(blobURL string, format DataFormat, opts ...SourceOption) (*BlobSource, error) {
	if blobURL == "" {
		return nil, errors.New("types: empty blob URL")
	}
	cfg, err := newSourceConfig(format, opts)
	if err != nil {
		return nil, err
	}
	if cfg.compression == CompressionNone {
		cfg.compression = CompressionFromPath(pathFromURL(blobURL))
	}
	return &BlobSource{cfg: cfg, url: blobURL}, nil
}

func (s *BlobSource) ID() uuid.UUID                { return s.cfg.id }
func (s *BlobSource) DataFormat() DataFormat       { return s.cfg.format }
func (s *BlobSource) CompressionType() Compression { return s.cfg.compression }

// URL returns the full blob URL including any SAS query. Never log it; use
// Name for a redacted form.
func (s *BlobSource) URL() string { return s.url }

// RawSize returns the declared uncompressed size in bytes, or 0 when
// unknown.
func (s *BlobSource) RawSize() int64 { return s.cfg.size }

// Name returns the blob URL stripped of its query string, safe for logs and
// status records.
func (s *BlobSource) Name() string { return RedactURL(s.url) }

// RedactURL strips the query string (which carries the SAS signature) from a
// URL so it can be logged or persisted.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func pathFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
