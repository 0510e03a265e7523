package cache

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// ====================================================================================
// This file defines a set of interfaces to abstract the Google Cloud Storage client.
// This abstraction allows the GCSStore to be tested without needing a real GCS
// client, improving unit test quality and speed.
// ====================================================================================

// --- GCS Client Abstraction Interfaces ---

// GCSClient abstracts the top-level *storage.Client.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a *storage.BucketHandle.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
}

// GCSObjectHandle abstracts a *storage.ObjectHandle.
type GCSObjectHandle interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
	NewWriter(ctx context.Context) GCSWriter
	Delete(ctx context.Context) error
}

// GCSWriter abstracts a *storage.Writer. It must satisfy the io.WriteCloser interface.
type GCSWriter interface {
	io.WriteCloser
}

// NewProductionGCSClient creates a storage client suitable for production
// environments. It will use Application Default Credentials unless a specific
// credentials file is provided.
func NewProductionGCSClient(ctx context.Context, credentialsFile string, logger zerolog.Logger) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
		logger.Info().Str("credentials_file", credentialsFile).Msg("Using specified credentials file for GCS client.")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for GCS client.")
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return client, nil
}

// --- Adapters to wrap the concrete Google Cloud Storage client ---

// gcsClientAdapter wraps a *storage.Client to satisfy the GCSClient interface.
type gcsClientAdapter struct {
	client *storage.Client
}

// NewGCSClientAdapter creates an adapter that makes the concrete *storage.Client
// conform to the GCSClient interface.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

// Bucket returns an adapter for the underlying bucket handle.
func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketHandleAdapter{handle: a.client.Bucket(name)}
}

// gcsBucketHandleAdapter wraps a *storage.BucketHandle to satisfy GCSBucketHandle.
type gcsBucketHandleAdapter struct {
	handle *storage.BucketHandle
}

// Object returns an adapter for the underlying object handle.
func (a *gcsBucketHandleAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectHandleAdapter{handle: a.handle.Object(name)}
}

// gcsObjectHandleAdapter wraps a *storage.ObjectHandle to satisfy GCSObjectHandle.
type gcsObjectHandleAdapter struct {
	handle *storage.ObjectHandle
}

// NewReader returns the underlying *storage.Reader, which already satisfies io.ReadCloser.
func (a *gcsObjectHandleAdapter) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return a.handle.NewReader(ctx)
}

// NewWriter returns the underlying *storage.Writer, which already satisfies the GCSWriter interface.
func (a *gcsObjectHandleAdapter) NewWriter(ctx context.Context) GCSWriter {
	return a.handle.NewWriter(ctx)
}

// Delete removes the underlying object.
func (a *gcsObjectHandleAdapter) Delete(ctx context.Context) error {
	return a.handle.Delete(ctx)
}
