package azstore

import (
	"context"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// StorageQueue implements Queue over the Azure queue SDK.
type StorageQueue struct {
	ref    Ref
	client *azqueue.QueueClient
}

var _ Queue = (*StorageQueue)(nil)

// NewStorageQueue opens the queue addressed by an advertised resource. Pass
// the process-wide HTTP client so all components share one transport; nil
// falls back to the SDK default.
func NewStorageQueue(ref Ref, httpClient *http.Client) (*StorageQueue, error) {
	opts := &azqueue.ClientOptions{}
	if httpClient != nil {
		opts.Transport = httpClient
	}
	client, err := azqueue.NewQueueClientWithNoCredential(ref.Raw, opts)
	if err != nil {
		return nil, wrap(err, "open queue", ref.String())
	}
	return &StorageQueue{ref: ref, client: client}, nil
}

// Account returns the storage account the queue lives in.
func (q *StorageQueue) Account() string { return q.ref.Account }

// String returns the queue endpoint without the SAS.
func (q *StorageQueue) String() string { return q.ref.Endpoint }

// Enqueue posts one message to the queue.
func (q *StorageQueue) Enqueue(ctx context.Context, message string) error {
	_, err := q.client.EnqueueMessage(ctx, message, nil)
	return wrap(err, "enqueue", q.ref.Endpoint)
}
