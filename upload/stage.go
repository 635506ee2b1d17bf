package upload

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"

	"github.com/pithecene-io/hopper/iox"
	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/types"
)

// stagedPayload is a compressed copy of a source, replayable once per
// container attempt. Compressing up front means a mid-upload failure never
// re-compresses, and the exact raw size is known before the first attempt.
type stagedPayload struct {
	open    func() (io.ReadCloser, error)
	size    int64 // compressed bytes at rest
	rawSize int64 // raw bytes consumed from the source
	cleanup func()
}

// stageCompressed gzip-compresses src into memory when its declared size
// fits under memStageLimit, and into a temp file otherwise (unknown sizes
// included, since they may be arbitrarily large).
func stageCompressed(src types.LocalSource, memStageLimit int64) (*stagedPayload, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, kusto.UploadError(kusto.CodeSourceNotReadable, err)
	}
	defer iox.DiscardClose(rc)

	if size := src.Size(); size > 0 && size <= memStageLimit {
		return stageToMemory(rc)
	}
	return stageToFile(rc)
}

func stageToMemory(r io.Reader) (*stagedPayload, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	raw, err := io.Copy(gz, r)
	if err != nil {
		return nil, kusto.UploadError(kusto.CodeSourceNotReadable, err)
	}
	if err := gz.Close(); err != nil {
		return nil, kusto.UploadError(kusto.CodeUploadFailed, err)
	}
	payload := buf.Bytes()
	return &stagedPayload{
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		},
		size:    int64(len(payload)),
		rawSize: raw,
		cleanup: func() {},
	}, nil
}

func stageToFile(r io.Reader) (*stagedPayload, error) {
	f, err := os.CreateTemp("", "hopper-stage-*.gz")
	if err != nil {
		return nil, kusto.UploadError(kusto.CodeUploadFailed, err)
	}
	name := f.Name()
	remove := func() { _ = os.Remove(name) }

	cw := iox.NewCountingWriter(f)
	gz := gzip.NewWriter(cw)
	raw, err := io.Copy(gz, r)
	if err == nil {
		err = gz.Close()
	} else {
		_ = gz.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		remove()
		return nil, kusto.UploadError(kusto.CodeSourceNotReadable, err)
	}

	return &stagedPayload{
		open: func() (io.ReadCloser, error) {
			return os.Open(name)
		},
		size:    cw.Count(),
		rawSize: raw,
		cleanup: remove,
	}, nil
}
