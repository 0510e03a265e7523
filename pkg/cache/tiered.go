package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TieredStoreConfig holds configuration for the two-level store.
type TieredStoreConfig struct {
	// PromoteTimeout bounds the background copy of a back-tier hit into the
	// front tier.
	PromoteTimeout time.Duration
}

// NewTieredStoreConfigDefaults provides a config with a promotion timeout
// generous enough for a slow shared tier.
func NewTieredStoreConfigDefaults() *TieredStoreConfig {
	return &TieredStoreConfig{PromoteTimeout: 10 * time.Second}
}

// TieredStore chains a fast front Store (typically in-memory) over a slower,
// durable back Store (Badger, Redis or GCS). Lookups try the front first and
// promote back-tier hits in the background; writes and removals go to both.
type TieredStore struct {
	promoteTimeout time.Duration
	logger         zerolog.Logger
	front          Store
	back           Store
}

// NewTieredStore composes the two tiers. Both stores are owned by the result:
// closing it closes them.
func NewTieredStore(cfg *TieredStoreConfig, front, back Store, logger zerolog.Logger) (*TieredStore, error) {
	if cfg == nil {
		cfg = NewTieredStoreConfigDefaults()
	}
	if front == nil || back == nil {
		return nil, errors.New("tiered store requires both a front and a back store")
	}
	return &TieredStore{
		promoteTimeout: cfg.PromoteTimeout,
		logger:         logger.With().Str("component", "TieredStore").Logger(),
		front:          front,
		back:           back,
	}, nil
}

// Lookup tries the front tier, then the back tier. Back-tier hits are copied
// forward in the background so the next lookup is fast.
func (s *TieredStore) Lookup(ctx context.Context, key string) (*Entry, error) {
	// 1. Try the front tier.
	entry, err := s.front.Lookup(ctx, key)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrMiss) {
		// A failing front tier should not hide a healthy back tier.
		s.logger.Warn().Err(err).Str("key", key).Msg("Front tier lookup failed. Falling back.")
	}

	// 2. Front miss, try the back tier.
	entry, err = s.back.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	// 3. Back hit, promote to the front tier in the background.
	go func(k string, e *Entry) {
		promoteCtx, cancel := context.WithTimeout(context.Background(), s.promoteTimeout)
		defer cancel()
		if promoteErr := s.front.Save(promoteCtx, k, e); promoteErr != nil {
			s.logger.Error().Err(promoteErr).Str("key", k).Msg("Failed to promote entry to front tier.")
		}
	}(key, entry)

	return entry, nil
}

// Save writes the entry to both tiers. A failure in either tier is reported,
// but does not prevent the write to the other.
func (s *TieredStore) Save(ctx context.Context, key string, entry *Entry) error {
	frontErr := s.front.Save(ctx, key, entry)
	backErr := s.back.Save(ctx, key, entry)
	if frontErr != nil {
		return fmt.Errorf("error saving to front tier: %w", frontErr)
	}
	if backErr != nil {
		return fmt.Errorf("error saving to back tier: %w", backErr)
	}
	return nil
}

// Remove deletes the entry from both tiers.
func (s *TieredStore) Remove(ctx context.Context, key string) error {
	frontErr := s.front.Remove(ctx, key)
	backErr := s.back.Remove(ctx, key)
	if frontErr != nil {
		return fmt.Errorf("error removing from front tier: %w", frontErr)
	}
	if backErr != nil {
		return fmt.Errorf("error removing from back tier: %w", backErr)
	}
	return nil
}

// Close closes both tiers.
func (s *TieredStore) Close() error {
	if err := s.front.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Error closing front tier.")
		return fmt.Errorf("error closing front tier: %w", err)
	}
	if err := s.back.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Error closing back tier.")
		return fmt.Errorf("error closing back tier: %w", err)
	}
	return nil
}
