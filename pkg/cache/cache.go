// Package cache provides the pluggable storage tiers used by the image loader.
package cache

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrMiss is returned by Lookup when no entry exists for a key, or when the
// backend has already hard-expired it.
var ErrMiss = errors.New("cache miss")

// Entry is one cached response: the raw image bytes plus the validity
// metadata the transport layer recorded when it fetched them. Callers must
// treat a returned entry as read-only.
type Entry struct {
	// Data is the raw response body.
	Data []byte `json:"data"`

	// ContentType is the media type the origin reported, when known.
	ContentType string `json:"contentType,omitempty"`

	// ETag and LastModified are the origin's validators, kept so a stale
	// entry can be revalidated with a conditional request instead of a full
	// refetch.
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"lastModified,omitempty"`

	// FetchedAt is when the bytes were obtained from the origin.
	FetchedAt time.Time `json:"fetchedAt"`

	// ExpiresAt is the freshness horizon. A zero value means the entry must
	// be revalidated before it counts as fresh; it remains servable to
	// readers that tolerate staleness.
	ExpiresAt time.Time `json:"expiresAt"`
}

// Fresh reports whether the entry can be served without revalidation at the
// given instant.
func (e *Entry) Fresh(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.Before(e.ExpiresAt)
}

// HasValidators reports whether the entry carries enough origin metadata for
// a conditional revalidation request.
func (e *Entry) HasValidators() bool {
	return e.ETag != "" || e.LastModified != ""
}

// Store is the contract every cache tier satisfies. Implementations must be
// safe for concurrent use; they own their retention mechanics (LRU capacity,
// key TTLs, bucket lifecycle) entirely.
type Store interface {
	// Lookup returns the stored entry for a key, or ErrMiss when nothing is
	// stored. Entries past their freshness horizon are still returned;
	// callers decide how much staleness they tolerate.
	Lookup(ctx context.Context, key string) (*Entry, error)

	// Save upserts an entry. Implementations stamp a missing ExpiresAt from
	// their configured default TTL; they make no other modification.
	Save(ctx context.Context, key string, entry *Entry) error

	// Remove deletes an entry. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Closer releases any connections or file handles the tier holds.
	io.Closer
}

// KeyForURL derives the canonical cache key for a resource URL. The
// orchestrator and the transport layer both address entries through this
// function so they agree on a single key space.
func KeyForURL(url string) string {
	return strconv.FormatUint(xxhash.Sum64String(url), 16)
}

// stampExpiry fills a missing freshness horizon on entries saved without
// one. Every Store implementation calls this from Save.
func stampExpiry(entry *Entry, defaultTTL time.Duration) {
	if !entry.ExpiresAt.IsZero() || defaultTTL <= 0 {
		return
	}
	base := entry.FetchedAt
	if base.IsZero() {
		base = time.Now()
	}
	entry.ExpiresAt = base.Add(defaultTTL)
}
