package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// BadgerStoreConfig holds the configuration for the embedded on-disk tier.
type BadgerStoreConfig struct {
	// Path is the directory holding the database files. Ignored when
	// InMemory is set.
	Path string
	// InMemory keeps the database entirely in RAM, which is what tests use.
	InMemory bool
	// DefaultTTL stamps the freshness horizon on entries saved without one.
	DefaultTTL time.Duration
	// Retention is the hard key expiry, enforced natively by Badger. It
	// should comfortably exceed DefaultTTL so stale entries stay servable;
	// zero keeps entries forever.
	Retention time.Duration
}

// NewBadgerStoreConfigDefaults provides a config for a local database under
// the given directory.
func NewBadgerStoreConfigDefaults(path string) *BadgerStoreConfig {
	return &BadgerStoreConfig{
		Path:       path,
		DefaultTTL: time.Hour,
		Retention:  7 * 24 * time.Hour,
	}
}

// BadgerStore is an embedded, persistent Store backed by BadgerDB. It is the
// tier that keeps images available across restarts and network outages
// without requiring any external service.
type BadgerStore struct {
	db         *badger.DB
	logger     zerolog.Logger
	defaultTTL time.Duration
	retention  time.Duration
}

// NewBadgerStore opens (or creates) the database described by cfg.
func NewBadgerStore(cfg *BadgerStoreConfig, logger zerolog.Logger) (*BadgerStore, error) {
	if cfg == nil {
		return nil, errors.New("badger store config cannot be nil")
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger store requires a path unless running in-memory")
	}

	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("Opened Badger database.")

	return &BadgerStore{
		db:         db,
		logger:     logger.With().Str("component", "BadgerStore").Logger(),
		defaultTTL: cfg.DefaultTTL,
		retention:  cfg.Retention,
	}, nil
}

// Lookup retrieves an entry in a read-only transaction. A missing key and a
// corrupt payload both surface as ErrMiss.
func (s *BadgerStore) Lookup(_ context.Context, key string) (*Entry, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrMiss
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached entry; treating as miss.")
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to read from badger: %w", err)
	}
	return &entry, nil
}

// Save stores the entry as JSON with the configured retention as its TTL.
func (s *BadgerStore) Save(_ context.Context, key string, entry *Entry) error {
	stampExpiry(entry, s.defaultTTL)

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), jsonData)
		if s.retention > 0 {
			e = e.WithTTL(s.retention)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("failed to write to badger: %w", err)
	}
	return nil
}

// Remove deletes the entry. Removing an absent key is not an error.
func (s *BadgerStore) Remove(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete from badger: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying database.
func (s *BadgerStore) Close() error {
	s.logger.Info().Msg("Closing Badger database...")
	return s.db.Close()
}
