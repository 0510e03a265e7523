// Package transport performs the network half of image loading: cancellable
// asynchronous fetches whose cache behavior is chosen per request by the
// caller, with a pluggable store consulted and populated along the way.
package transport

import (
	"context"
	"time"
)

// CacheDirective selects the cache behavior of a single request. It is
// derived fresh per call by the orchestrator from the caller's policy and
// current reachability; it is never stored.
type CacheDirective int

const (
	// UseProtocolDefault lets stored freshness metadata decide: fresh entries
	// are served directly, stale entries are revalidated against the origin.
	UseProtocolDefault CacheDirective = iota
	// RevalidateAlways bypasses stored freshness and asks the origin for
	// current bytes.
	RevalidateAlways
	// PreferCacheEvenIfStale serves whatever is stored, however old, touching
	// the network only when the store holds nothing at all.
	PreferCacheEvenIfStale
)

// String returns a human-readable directive name for logs.
func (d CacheDirective) String() string {
	switch d {
	case UseProtocolDefault:
		return "UseProtocolDefault"
	case RevalidateAlways:
		return "RevalidateAlways"
	case PreferCacheEvenIfStale:
		return "PreferCacheEvenIfStale"
	default:
		return "Unknown"
	}
}

// Request describes one fetch. It is value-copied on Start and never mutated
// afterwards, so a caller can reuse it.
type Request struct {
	URL string
	// Method defaults to GET when empty.
	Method string
	// Timeout bounds the whole fetch, connection establishment included.
	// Zero means no per-request bound beyond the caller's context.
	Timeout time.Duration
	// Directive selects how the store participates in this request.
	Directive CacheDirective
}

// ResponseMeta carries the transport-level metadata of a completed fetch.
type ResponseMeta struct {
	StatusCode   int
	ContentType  string
	ETag         string
	LastModified string
	// FromCache reports that the bytes were served from the store rather
	// than read off the network. A revalidated entry counts as FromCache:
	// the origin confirmed validity but the bytes never crossed the wire.
	FromCache bool
}

// Callback receives the outcome of a started operation. It is invoked
// exactly once per operation, on a transport-owned goroutine. A cancelled
// operation reports an error satisfying errors.Is(err, context.Canceled);
// an expired request timeout reports context.DeadlineExceeded.
type Callback func(data []byte, meta *ResponseMeta, err error)

// Operation is the cancellation handle for one in-flight fetch.
type Operation interface {
	// Cancel aborts the operation. It is idempotent, safe to call
	// concurrently with completion, and a no-op once the operation has
	// finished.
	Cancel()
}

// Session starts asynchronous fetches. Implementations own the goroutines
// and connection pools behind Start; Start itself never blocks on network
// activity.
type Session interface {
	Start(ctx context.Context, req Request, cb Callback) Operation
}
