package azstore

import (
	"context"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// BlobContainer implements Container over the Azure block-blob SDK.
type BlobContainer struct {
	ref    Ref
	client *container.Client
}

var _ Container = (*BlobContainer)(nil)

// NewBlobContainer opens the container addressed by an advertised resource.
// Pass the process-wide HTTP client so all components share one transport;
// nil falls back to the SDK default.
func NewBlobContainer(ref Ref, httpClient *http.Client) (*BlobContainer, error) {
	opts := &container.ClientOptions{}
	if httpClient != nil {
		opts.Transport = httpClient
	}
	client, err := container.NewClientWithNoCredential(ref.Raw, opts)
	if err != nil {
		return nil, wrap(err, "open container", ref.String())
	}
	return &BlobContainer{ref: ref, client: client}, nil
}

// Account returns the storage account the container lives in.
func (c *BlobContainer) Account() string { return c.ref.Account }

// String returns the container endpoint without the SAS.
func (c *BlobContainer) String() string { return c.ref.Endpoint }

// Upload writes body as a block blob. Blocks of opts.BlockSize are uploaded
// with up to opts.Concurrency parallel requests; zero values keep the SDK
// defaults.
func (c *BlobContainer) Upload(ctx context.Context, blobName string, body io.Reader, opts UploadOptions) error {
	streamOpts := &blockblob.UploadStreamOptions{}
	if opts.BlockSize > 0 {
		streamOpts.BlockSize = opts.BlockSize
	}
	if opts.Concurrency > 0 {
		streamOpts.Concurrency = opts.Concurrency
	}

	_, err := c.client.NewBlockBlobClient(blobName).UploadStream(ctx, body, streamOpts)
	return wrap(err, "upload", c.ref.Endpoint+"/"+blobName)
}

// BlobURL returns the SAS-authorized URL of a blob in this container,
// suitable for the BlobPath field of a queued ingest message.
func (c *BlobContainer) BlobURL(blobName string) string {
	u := c.ref.Endpoint + "/" + blobName
	if c.ref.SAS != "" {
		u += "?" + c.ref.SAS
	}
	return u
}
