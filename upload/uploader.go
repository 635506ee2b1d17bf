// Package upload moves local payloads into the DM-advertised temp-storage
// containers as block blobs, compressing text formats on the way and
// walking the ranked container list until one accepts the payload.
package upload

import (
	"context"
	"errors"
	"io"
	"path/filepath"

	"github.com/pithecene-io/hopper/azstore"
	"github.com/pithecene-io/hopper/iox"
	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/metrics"
	"github.com/pithecene-io/hopper/retry"
	"github.com/pithecene-io/hopper/types"
)

const (
	// DefaultBlockSize is the block-blob block size.
	DefaultBlockSize = 4 * 1024 * 1024
	// DefaultConcurrency bounds parallel block uploads per payload.
	DefaultConcurrency = 16
	// MaxDataSize caps one payload's raw size unless the ingestion
	// properties bypass it.
	MaxDataSize = int64(4) * 1024 * 1024 * 1024
	// maxBlocks is the service-side block count limit per blob.
	maxBlocks = 50_000
	// memStageLimit is the size up to which a compressed copy is staged in
	// memory; larger or unknown payloads spill to a temp file.
	memStageLimit = int64(256) * 1024 * 1024
	// compressedSizeFactor estimates raw size from at-rest compressed
	// bytes when only the latter is known.
	compressedSizeFactor = 11
)

// ResourceProvider serves ranked upload targets and takes outcome feedback.
// *resources.Manager satisfies it.
type ResourceProvider interface {
	ShuffledContainers() ([]azstore.Container, int, error)
	ReportAccountResult(account string, success bool)
}

// Uploader stores local payloads as block blobs reachable by the ingestion
// service. Safe for concurrent use.
type Uploader struct {
	resources   ResourceProvider
	logger      *log.Logger
	collector   *metrics.Collector
	policy      retry.Policy
	blockSize   int64
	concurrency int
	maxSize     int64
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithLogger attaches a logger. The default discards everything.
func WithLogger(l *log.Logger) Option {
	return func(u *Uploader) { u.logger = l }
}

// WithBlockSize overrides DefaultBlockSize.
func WithBlockSize(n int64) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.blockSize = n
		}
	}
}

// WithConcurrency overrides DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.concurrency = n
		}
	}
}

// WithMaxSize overrides the MaxDataSize cap.
func WithMaxSize(n int64) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.maxSize = n
		}
	}
}

// WithRetryPolicy retries each container attempt under the given policy.
// The default makes one attempt per container; the walk itself is the
// retry mechanism, and the storage SDK already re-sends failed blocks.
func WithRetryPolicy(p retry.Policy) Option {
	return func(u *Uploader) { u.policy = p }
}

// WithMetrics attaches a metrics collector. Nil is fine.
func WithMetrics(c *metrics.Collector) Option {
	return func(u *Uploader) { u.collector = c }
}

// NewUploader builds an uploader over the given resource provider.
func NewUploader(rp ResourceProvider, opts ...Option) *Uploader {
	u := &Uploader{
		resources:   rp,
		logger:      log.NewNop(),
		policy:      retry.NoRetry(),
		blockSize:   DefaultBlockSize,
		concurrency: DefaultConcurrency,
		maxSize:     MaxDataSize,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// payload is what one container attempt sends: a fresh reader per attempt
// plus how raw bytes are accounted.
type payload struct {
	open func() (io.ReadCloser, error)
	// rawSize is the exact raw byte count when staged compression already
	// consumed the source; 0 means count during upload.
	rawSize int64
	// size is the at-rest byte count when known, 0 otherwise. It tunes the
	// block size.
	size int64
}

// Upload stores src as a block blob and returns a BlobSource addressing it.
// The source's raw size (exact when known, the compressed-size estimate
// otherwise) travels on the returned BlobSource.
func (u *Uploader) Upload(ctx context.Context, src types.LocalSource, props *types.IngestionProperties) (*types.BlobSource, error) {
	blob, err := u.upload(ctx, src, props)
	if err != nil {
		u.collector.IncUploadFailed()
		return nil, err
	}
	u.collector.IncUploadSucceeded()
	return blob, nil
}

func (u *Uploader) upload(ctx context.Context, src types.LocalSource, props *types.IngestionProperties) (*types.BlobSource, error) {
	if src == nil {
		return nil, kusto.UploadError(kusto.CodeSourceNull, nil)
	}
	if props == nil {
		return nil, kusto.ClientError("nil ingestion properties")
	}
	format, err := props.Validate(src)
	if err != nil {
		return nil, kusto.ClientError(err.Error())
	}

	if err := u.checkSizeCap(src, props.IgnoreSizeLimit); err != nil {
		return nil, err
	}

	compress := types.ShouldCompress(format, src.CompressionType())

	p := payload{open: src.Open, size: src.Size()}
	ext := ""
	if compress {
		staged, err := stageCompressed(src, memStageLimit)
		if err != nil {
			return nil, err
		}
		defer staged.cleanup()
		if staged.rawSize == 0 {
			return nil, kusto.UploadError(kusto.CodeSourceEmpty, nil)
		}
		if staged.rawSize > u.maxSize && !props.IgnoreSizeLimit {
			return nil, kusto.UploadError(kusto.CodeSizeLimitExceeded, nil)
		}
		p = payload{open: staged.open, rawSize: staged.rawSize, size: staged.size}
		ext = ".gz"
	}

	blobName := BlobName(props.Database, props.Table, src.ID(), filepath.Base(src.Name()), ext)

	containers, start, err := u.resources.ShuffledContainers()
	if err != nil {
		return nil, err
	}

	blobURL, rawSize, err := u.walk(ctx, containers, start, blobName, p)
	if err != nil {
		return nil, err
	}

	u.logger.Info("payload uploaded", map[string]any{
		"blob":       types.RedactURL(blobURL),
		"raw_bytes":  rawSize,
		"compressed": compress,
		"database":   props.Database,
		"table":      props.Table,
		"source_id":  src.ID().String(),
	})

	declared := rawSize
	if src.CompressionType() != types.CompressionNone {
		// The payload was compressed before it reached us; rawSize counted
		// compressed bytes, so declare the standard estimate instead.
		declared = rawSize * compressedSizeFactor
	}
	return types.NewBlobSource(blobURL, format,
		types.WithSourceID(src.ID()),
		types.WithSize(declared),
		types.WithCompression(effectiveCompression(src, compress)),
	)
}

// checkSizeCap rejects payloads whose raw size, known or estimated, exceeds
// the cap. Unknown sizes pass; the staged path re-checks them exactly.
func (u *Uploader) checkSizeCap(src types.LocalSource, ignore bool) error {
	if ignore {
		return nil
	}
	size := src.Size()
	if size <= 0 {
		return nil
	}
	if src.CompressionType() != types.CompressionNone {
		size *= compressedSizeFactor
	}
	if size > u.maxSize {
		return kusto.UploadError(kusto.CodeSizeLimitExceeded, nil)
	}
	return nil
}

// walk tries each container starting at the assigned offset until one
// accepts the payload, feeding per-attempt outcomes back into the account
// ranking. Permanent failures stop the walk.
func (u *Uploader) walk(ctx context.Context, containers []azstore.Container, start int, blobName string, p payload) (string, int64, error) {
	var lastErr error
	for i := 0; i < len(containers); i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, kusto.CanceledError(err)
		}
		c := containers[(start+i)%len(containers)]

		var rawSize int64
		err := retry.Do(ctx, u.policy, func() error {
			var aerr error
			rawSize, aerr = u.attempt(ctx, c, blobName, p)
			return aerr
		})
		if !isSourceError(err) {
			// Source-side failures are not the account's fault and must not
			// move its rank.
			u.resources.ReportAccountResult(c.Account(), err == nil)
		}
		if err == nil {
			return c.BlobURL(blobName), rawSize, nil
		}

		if retry.IsPermanent(err) || azstore.Fatal(err) {
			return "", 0, err
		}
		u.collector.IncUploadRetried()
		u.logger.Warn("container rejected payload, walking on", map[string]any{
			"container": c.String(),
			"account":   c.Account(),
			"error":     err.Error(),
		})
		lastErr = err
	}

	u.collector.IncContainerWalkExhausted()
	if lastErr == nil {
		return "", 0, kusto.NoContainersError()
	}
	code := kusto.CodeUploadFailed
	if errors.Is(lastErr, azstore.ErrNetwork) || errors.Is(lastErr, azstore.ErrTimeout) {
		code = kusto.CodeNetworkError
	}
	return "", 0, kusto.UploadError(code, lastErr)
}

// attempt sends one fresh copy of the payload to one container.
func (u *Uploader) attempt(ctx context.Context, c azstore.Container, blobName string, p payload) (int64, error) {
	rc, err := p.open()
	if err != nil {
		return 0, retry.Permanent(kusto.UploadError(kusto.CodeSourceNotReadable, err))
	}
	defer iox.DiscardClose(rc)

	var body io.Reader = rc
	var counter *iox.CountingReader
	if p.rawSize == 0 {
		counter = iox.NewCountingReader(rc)
		head, replay, err := iox.Peek(counter, 1)
		if err != nil {
			return 0, retry.Permanent(kusto.UploadError(kusto.CodeSourceNotReadable, err))
		}
		if len(head) == 0 {
			return 0, retry.Permanent(kusto.UploadError(kusto.CodeSourceEmpty, nil))
		}
		body = replay
	}

	opts := azstore.UploadOptions{
		BlockSize:   blockSizeFor(p.size, u.blockSize),
		Concurrency: u.concurrency,
	}
	if err := c.Upload(ctx, blobName, body, opts); err != nil {
		return 0, err
	}
	if counter != nil {
		return counter.Count(), nil
	}
	return p.rawSize, nil
}

// isSourceError reports whether err originates in the local source rather
// than the attempted container.
func isSourceError(err error) bool {
	var kerr *kusto.Error
	if !errors.As(err, &kerr) {
		return false
	}
	switch kerr.Code {
	case kusto.CodeSourceNotReadable, kusto.CodeSourceEmpty:
		return true
	}
	return false
}

// blockSizeFor widens the block size when the payload would not fit in the
// service's block-count limit at the configured size.
func blockSizeFor(size, blockSize int64) int64 {
	if size <= 0 || size/blockSize < maxBlocks {
		return blockSize
	}
	return (size + maxBlocks - 1) / maxBlocks
}

// effectiveCompression reports how the stored blob's bytes are compressed.
func effectiveCompression(src types.Source, compressed bool) types.Compression {
	if compressed {
		return types.CompressionGzip
	}
	return src.CompressionType()
}
