package imageloader

import "github.com/illmade-knight/go-imageloader/pkg/transport"

// CachePolicy is the caller's intent for one fetch. The zero value is
// UseCacheIfValid, so callers that don't care get the cheap behavior.
type CachePolicy int

const (
	// UseCacheIfValid serves a valid cached image when one exists and lets
	// protocol freshness rules govern the network otherwise.
	UseCacheIfValid CachePolicy = iota
	// ForceReload asks the origin for current bytes even when cached ones
	// look valid.
	ForceReload
)

// String returns a human-readable policy name for logs.
func (p CachePolicy) String() string {
	switch p {
	case UseCacheIfValid:
		return "UseCacheIfValid"
	case ForceReload:
		return "ForceReload"
	default:
		return "Unknown"
	}
}

// ResolveDirective maps current reachability and the caller's policy onto
// the transport cache directive:
//
//	reachable   + ForceReload     -> RevalidateAlways
//	reachable   + UseCacheIfValid -> UseProtocolDefault
//	unreachable + anything        -> PreferCacheEvenIfStale
//
// Offline, staleness tolerance overrides an explicit reload request: stale
// bytes beat no bytes when there is no network to reload from.
func ResolveDirective(reachable bool, policy CachePolicy) transport.CacheDirective {
	if !reachable {
		return transport.PreferCacheEvenIfStale
	}
	if policy == ForceReload {
		return transport.RevalidateAlways
	}
	return transport.UseProtocolDefault
}
