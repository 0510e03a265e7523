package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
)

// GCSStoreConfig holds the configuration for the cloud archive tier.
type GCSStoreConfig struct {
	BucketName string
	// ObjectPrefix namespaces entries within the bucket.
	ObjectPrefix string
	// DefaultTTL stamps the freshness horizon on entries saved without one.
	// Hard retention is the bucket's own lifecycle policy.
	DefaultTTL time.Duration
}

// GCSStore is a durable Store backed by Google Cloud Storage. It is the slow,
// shared tier that survives process restarts and lets a fleet of loaders
// populate each other's caches. Entries are stored as one JSON object each.
type GCSStore struct {
	client     GCSClient
	bucketName string
	prefix     string
	defaultTTL time.Duration
	logger     zerolog.Logger
}

// NewGCSStore creates a store writing to the configured bucket. The client is
// typically NewGCSClientAdapter wrapping a production *storage.Client.
func NewGCSStore(client GCSClient, cfg GCSStoreConfig, logger zerolog.Logger) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name cannot be empty")
	}
	return &GCSStore{
		client:     client,
		bucketName: cfg.BucketName,
		prefix:     cfg.ObjectPrefix,
		defaultTTL: cfg.DefaultTTL,
		logger:     logger.With().Str("component", "GCSStore").Str("bucket", cfg.BucketName).Logger(),
	}, nil
}

// Lookup downloads and decodes the object for a key. A missing object and a
// corrupt payload both surface as ErrMiss.
func (s *GCSStore) Lookup(ctx context.Context, key string) (*Entry, error) {
	object := s.client.Bucket(s.bucketName).Object(s.objectName(key))

	reader, err := object.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to open GCS object for key %q: %w", key, err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object for key %q: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached entry; treating as miss.")
		return nil, ErrMiss
	}
	return &entry, nil
}

// Save encodes the entry and uploads it as a single object.
func (s *GCSStore) Save(ctx context.Context, key string, entry *Entry) error {
	stampExpiry(entry, s.defaultTTL)

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	writer := s.client.Bucket(s.bucketName).Object(s.objectName(key)).NewWriter(ctx)
	if _, err := writer.Write(jsonData); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write GCS object for key %q: %w", key, err)
	}
	// Close finalizes the upload; the write is not durable until it returns.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS object for key %q: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Msg("Successfully stored entry in GCS.")
	return nil
}

// Remove deletes the object. Removing an absent key is not an error.
func (s *GCSStore) Remove(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucketName).Object(s.objectName(key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object for key %q: %w", key, err)
	}
	return nil
}

// Close is a no-op; the underlying client's lifecycle belongs to its creator.
func (s *GCSStore) Close() error {
	return nil
}

func (s *GCSStore) objectName(key string) string {
	return path.Join(s.prefix, key+".json")
}
