// Package imageloader orchestrates cache-aware image fetching: it answers
// from the cache when it can, otherwise starts a cancellable network fetch
// whose cache behavior is derived from connectivity and the caller's policy,
// and delivers every completion serially on a single dispatch goroutine.
package imageloader

import (
	"context"
	"errors"
	"image"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-imageloader/pkg/cache"
	"github.com/illmade-knight/go-imageloader/pkg/transport"
)

// CompletionFunc receives the outcome of one Fetch. A nil image means the
// resource could not be produced (transport failure, empty body or undecodable
// bytes); fromCache reports whether the loader answered from its cache
// without starting a network fetch. Completions are invoked serially on the
// loader's dispatch goroutine and at most once per Fetch.
type CompletionFunc func(img image.Image, fromCache bool)

// Config holds the orchestrator's tunables.
type Config struct {
	// RequestTimeout bounds each network fetch.
	RequestTimeout time.Duration
	// DispatchBuffer sizes the completion queue; submissions block when it
	// is full, applying backpressure to the transport goroutines.
	DispatchBuffer int
}

// NewConfigDefaults provides a config with sensible defaults.
func NewConfigDefaults() *Config {
	cfg := &Config{
		RequestTimeout: 15 * time.Second,
		DispatchBuffer: 64,
	}
	// The following logic allows for overriding defaults via environment variables.
	if rt := os.Getenv("IMAGELOADER_REQUEST_TIMEOUT"); rt != "" {
		if val, err := time.ParseDuration(rt); err == nil && val > 0 {
			cfg.RequestTimeout = val
		}
	}
	return cfg
}

// ImageLoader is the orchestrator. It owns no network or storage mechanics
// itself: the cache answers lookups, the session fetches, the reachability
// source steers the per-request directive, and the dispatcher serializes
// completion delivery.
type ImageLoader struct {
	cfg        Config
	store      cache.Store
	session    transport.Session
	reach      transport.Reachability
	decode     DecodeFunc
	dispatcher *completionDispatcher
	logger     zerolog.Logger
	started    atomic.Bool
}

// NewImageLoader wires the collaborators together. All of them are required;
// pass transport.StaticReachability(true) when connectivity tracking is not
// wanted.
func NewImageLoader(
	cfg *Config,
	store cache.Store,
	session transport.Session,
	reach transport.Reachability,
	logger zerolog.Logger,
) (*ImageLoader, error) {
	if cfg == nil {
		cfg = NewConfigDefaults()
	}
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if session == nil {
		return nil, errors.New("session cannot be nil")
	}
	if reach == nil {
		return nil, errors.New("reachability source cannot be nil")
	}
	return &ImageLoader{
		cfg:        *cfg,
		store:      store,
		session:    session,
		reach:      reach,
		decode:     DecodeImage,
		dispatcher: newCompletionDispatcher(cfg.DispatchBuffer, logger),
		logger:     logger.With().Str("component", "ImageLoader").Logger(),
	}, nil
}

// SetDecode replaces the default image decoder. It must be called before
// Start.
func (l *ImageLoader) SetDecode(decode DecodeFunc) {
	if decode != nil {
		l.decode = decode
	}
}

// Start launches the completion dispatch goroutine. The loader delivers no
// completions before Start and cannot be restarted after Stop.
func (l *ImageLoader) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("image loader already started")
	}
	l.dispatcher.start(ctx)
	l.logger.Info().Msg("Image loader started.")
	return nil
}

// Stop ends completion delivery after draining whatever is already queued,
// honoring the context's deadline. In-flight network operations are not
// interrupted; their completions are dropped if they arrive after the drain.
func (l *ImageLoader) Stop(ctx context.Context) error {
	if err := l.dispatcher.stop(ctx); err != nil {
		l.logger.Error().Err(err).Msg("Timeout waiting for completion dispatcher to drain.")
		return err
	}
	l.logger.Info().Msg("Image loader stopped.")
	return nil
}

// Fetch resolves one image and reports the outcome to onComplete.
//
// A cached entry that is still fresh completes without any network activity
// and Fetch returns nil: there is no task because there is nothing to cancel.
// Otherwise Fetch starts a session operation and returns its LoadingTask; the
// completion then arrives with fromCache=false once the network settles.
// Failures of any kind (transport, empty body, undecodable bytes) degrade to
// a completion with a nil image; a cancelled task's completion is suppressed
// entirely.
func (l *ImageLoader) Fetch(ctx context.Context, resource string, policy CachePolicy, onComplete CompletionFunc) *LoadingTask {
	if onComplete == nil {
		l.logger.Warn().Str("resource", resource).Msg("Fetch called without a completion callback; nothing to do.")
		return nil
	}

	// 1. A usable cached entry completes immediately, whatever the policy:
	// policy shapes transport behavior, not the local hit path.
	key := cache.KeyForURL(resource)
	if entry, err := l.store.Lookup(ctx, key); err == nil && entry.Fresh(time.Now()) {
		l.logger.Debug().Str("resource", resource).Msg("Cache hit; serving stored image.")
		img := l.decodeOrNil(entry.Data, resource)
		l.dispatcher.submit(func() { onComplete(img, true) })
		return nil
	}

	// 2. Cache miss: derive the directive from connectivity and the caller's
	// policy, then hand the fetch to the session.
	directive := ResolveDirective(l.reach.Reachable(), policy)
	taskID := uuid.NewString()
	logger := l.logger.With().Str("task_id", taskID).Str("resource", resource).Logger()
	logger.Debug().
		Str("policy", policy.String()).
		Str("directive", directive.String()).
		Msg("Cache miss; starting network fetch.")

	req := transport.Request{
		URL:       resource,
		Method:    http.MethodGet,
		Timeout:   l.cfg.RequestTimeout,
		Directive: directive,
	}
	op := l.session.Start(ctx, req, func(data []byte, _ *transport.ResponseMeta, err error) {
		l.deliver(logger, resource, data, err, onComplete)
	})
	return newLoadingTask(taskID, resource, op)
}

// deliver turns one session outcome into at most one queued completion.
func (l *ImageLoader) deliver(logger zerolog.Logger, resource string, data []byte, err error, onComplete CompletionFunc) {
	switch {
	case errors.Is(err, context.Canceled):
		// Suppression keys off the error alone, never off task state: bytes
		// that win a race against a late cancel are still delivered.
		logger.Debug().Msg("Fetch cancelled; suppressing completion.")
	case err != nil:
		logger.Warn().Err(err).Msg("Fetch failed; completing without an image.")
		l.dispatcher.submit(func() { onComplete(nil, false) })
	case len(data) == 0:
		logger.Warn().Msg("Fetch returned no data; completing without an image.")
		l.dispatcher.submit(func() { onComplete(nil, false) })
	default:
		img := l.decodeOrNil(data, resource)
		l.dispatcher.submit(func() { onComplete(img, false) })
	}
}

// decodeOrNil absorbs decode failures: undecodable bytes degrade to an
// absent image rather than an error.
func (l *ImageLoader) decodeOrNil(data []byte, resource string) image.Image {
	img, err := l.decode(data)
	if err != nil {
		l.logger.Warn().Err(err).Str("resource", resource).Msg("Image decode failed; completing without an image.")
		return nil
	}
	return img
}
