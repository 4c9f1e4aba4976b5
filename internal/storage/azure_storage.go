package storage

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// BlobStore reads whole objects from a container/bucket style service.
type BlobStore interface {
	GetObject(ctx context.Context, container, object string) ([]byte, error)
}

type azureStorage struct {
	client  *azblob.Client
	maxSize int64
}

// NewAzureStorage creates a blob reader for the given storage account.
func NewAzureStorage(accountName, accountKey string, maxSize int64) (BlobStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return &azureStorage{client: client, maxSize: maxSize}, nil
}

func (s *azureStorage) GetObject(ctx context.Context, container, object string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, container, object, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", container, object, err)
	}
	defer resp.Body.Close()

	if resp.ContentLength != nil && *resp.ContentLength > s.maxSize {
		return nil, fmt.Errorf("%w: blob %s/%s is %d bytes", ErrTooLarge, container, object, *resp.ContentLength)
	}
	return readLimited(resp.Body, s.maxSize)
}
