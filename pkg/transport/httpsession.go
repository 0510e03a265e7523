package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/illmade-knight/go-imageloader/pkg/cache"
	"github.com/rs/zerolog"
)

// HTTPSessionConfig holds configuration for the HTTP-backed session.
type HTTPSessionConfig struct {
	// MaxConnsPerHost bounds concurrent connections to a single origin.
	MaxConnsPerHost int
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	UserAgent       string
	// WriteBackTimeout bounds the background store write after a fetch.
	WriteBackTimeout time.Duration
}

// NewHTTPSessionConfigDefaults provides a config with sensible defaults.
func NewHTTPSessionConfigDefaults() *HTTPSessionConfig {
	cfg := &HTTPSessionConfig{
		MaxConnsPerHost:  6,
		MaxIdleConns:     32,
		IdleConnTimeout:  90 * time.Second,
		UserAgent:        "go-imageloader/1.0",
		WriteBackTimeout: 10 * time.Second,
	}
	// The following logic allows for overriding defaults via environment variables.
	if ua := os.Getenv("IMAGELOADER_USER_AGENT"); ua != "" {
		cfg.UserAgent = ua
	}
	if mc := os.Getenv("IMAGELOADER_MAX_CONNS_PER_HOST"); mc != "" {
		if val, err := strconv.Atoi(mc); err == nil && val > 0 {
			cfg.MaxConnsPerHost = val
		}
	}
	return cfg
}

// HTTPSession fetches images over HTTP(S). Each Start runs on its own
// goroutine against a shared, bounded connection pool. When a store is
// configured the session consults it according to the request directive and
// populates it with fetched bytes in the background.
type HTTPSession struct {
	client           *http.Client
	store            cache.Store
	logger           zerolog.Logger
	userAgent        string
	writeBackTimeout time.Duration
}

// NewHTTPSession creates a session. The store may be nil, which disables
// cache participation entirely; every request then goes to the origin.
func NewHTTPSession(cfg *HTTPSessionConfig, store cache.Store, logger zerolog.Logger) (*HTTPSession, error) {
	if cfg == nil {
		return nil, errors.New("http session config cannot be nil")
	}
	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost: cfg.MaxConnsPerHost,
			MaxIdleConns:    cfg.MaxIdleConns,
			IdleConnTimeout: cfg.IdleConnTimeout,
		},
	}
	return &HTTPSession{
		client:           client,
		store:            store,
		logger:           logger.With().Str("component", "HTTPSession").Logger(),
		userAgent:        cfg.UserAgent,
		writeBackTimeout: cfg.WriteBackTimeout,
	}, nil
}

// Start launches the fetch and returns its cancellation handle immediately.
func (s *HTTPSession) Start(ctx context.Context, req Request, cb Callback) Operation {
	opCtx, cancel := context.WithCancel(ctx)
	op := &httpOperation{cancel: cancel}
	go func() {
		defer cancel()
		s.run(opCtx, req, cb)
	}()
	return op
}

// httpOperation cancels one in-flight fetch by tearing down its context.
type httpOperation struct {
	cancelOnce sync.Once
	cancel     context.CancelFunc
}

// Cancel aborts the operation. Idempotent; a no-op after completion.
func (o *httpOperation) Cancel() {
	o.cancelOnce.Do(o.cancel)
}

// fetchResult is the internal outcome of one origin round trip.
type fetchResult struct {
	data        []byte
	meta        *ResponseMeta
	expiresAt   time.Time // freshness horizon granted by the origin, zero when silent
	noStore     bool      // origin forbade storing the response
	notModified bool      // origin confirmed the conditional entry is still valid
}

// run executes one fetch to completion and invokes the callback exactly once.
func (s *HTTPSession) run(ctx context.Context, req Request, cb Callback) {
	logger := s.logger.With().Str("url", req.URL).Str("directive", req.Directive.String()).Logger()
	key := cache.KeyForURL(req.URL)

	// 1. Consult the store as the directive demands. RevalidateAlways
	// ignores stored bytes entirely, so it skips the lookup.
	var conditional *cache.Entry
	if s.store != nil && req.Directive != RevalidateAlways {
		entry, err := s.store.Lookup(ctx, key)
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			logger.Warn().Err(err).Msg("Store lookup failed; fetching from origin.")
		}
		if err == nil {
			switch req.Directive {
			case PreferCacheEvenIfStale:
				logger.Debug().Msg("Serving stored entry without revalidation.")
				cb(entry.Data, entryMeta(entry), nil)
				return
			case UseProtocolDefault:
				if entry.Fresh(time.Now()) {
					logger.Debug().Msg("Serving fresh stored entry.")
					cb(entry.Data, entryMeta(entry), nil)
					return
				}
				if entry.HasValidators() {
					conditional = entry
				}
			}
		}
	}

	// 2. Go to the origin.
	res, err := s.roundTrip(ctx, req, conditional)
	if err != nil {
		cb(nil, nil, err)
		return
	}

	// 3. A 304 means the stored bytes are still current: refresh their
	// horizon and serve them.
	if res.notModified {
		logger.Debug().Msg("Origin confirmed stored entry is still valid.")
		refreshed := *conditional
		refreshed.FetchedAt = time.Now()
		refreshed.ExpiresAt = res.expiresAt
		if !res.noStore {
			s.writeBack(key, &refreshed, logger)
		}
		cb(refreshed.Data, entryMeta(&refreshed), nil)
		return
	}

	// 4. Fresh bytes: populate the store in the background and deliver.
	if s.store != nil && len(res.data) > 0 && !res.noStore {
		entry := &cache.Entry{
			Data:         res.data,
			ContentType:  res.meta.ContentType,
			ETag:         res.meta.ETag,
			LastModified: res.meta.LastModified,
			FetchedAt:    time.Now(),
			ExpiresAt:    res.expiresAt,
		}
		s.writeBack(key, entry, logger)
	}
	cb(res.data, res.meta, nil)
}

// roundTrip performs the actual HTTP exchange. When conditional is non-nil
// its validators are attached and a 304 response is reported via
// fetchResult.notModified instead of an error.
func (s *HTTPSession) roundTrip(ctx context.Context, req Request, conditional *cache.Entry) (*fetchResult, error) {
	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, method, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", req.URL, err)
	}
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}
	switch {
	case conditional != nil:
		if conditional.ETag != "" {
			httpReq.Header.Set("If-None-Match", conditional.ETag)
		}
		if conditional.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", conditional.LastModified)
		}
	case req.Directive == RevalidateAlways:
		httpReq.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.URL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	now := time.Now()
	expiresAt, noStore := freshnessFromHeaders(resp.Header, now)

	if resp.StatusCode == http.StatusNotModified && conditional != nil {
		return &fetchResult{expiresAt: expiresAt, noStore: noStore, notModified: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %d", req.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// A cancelled or timed-out context is the reliable signal here; the
		// transport's own read error varies.
		if ctxErr := reqCtx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, fmt.Errorf("failed to read body from %s: %w", req.URL, err)
	}

	return &fetchResult{
		data: body,
		meta: &ResponseMeta{
			StatusCode:   resp.StatusCode,
			ContentType:  resp.Header.Get("Content-Type"),
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
		expiresAt: expiresAt,
		noStore:   noStore,
	}, nil
}

// writeBack persists an entry without blocking the delivery path.
func (s *HTTPSession) writeBack(key string, entry *cache.Entry, logger zerolog.Logger) {
	if s.store == nil {
		return
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), s.writeBackTimeout)
		defer cancel()
		if err := s.store.Save(writeCtx, key, entry); err != nil {
			logger.Error().Err(err).Msg("Failed to write fetched entry to store in background.")
		}
	}()
}

// entryMeta describes a store-served response. Stored entries originate from
// successful fetches, so the status is reported as 200.
func entryMeta(entry *cache.Entry) *ResponseMeta {
	return &ResponseMeta{
		StatusCode:   http.StatusOK,
		ContentType:  entry.ContentType,
		ETag:         entry.ETag,
		LastModified: entry.LastModified,
		FromCache:    true,
	}
}

// freshnessFromHeaders derives the horizon the origin granted, preferring
// Cache-Control max-age over Expires. The second result reports a no-store
// directive.
func freshnessFromHeaders(h http.Header, now time.Time) (time.Time, bool) {
	noStore := false
	var expiresAt time.Time
	for _, part := range strings.Split(h.Get("Cache-Control"), ",") {
		part = strings.TrimSpace(part)
		if part == "no-store" {
			noStore = true
		}
		if v, ok := strings.CutPrefix(part, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				expiresAt = now.Add(time.Duration(secs) * time.Second)
			}
		}
	}
	if expiresAt.IsZero() {
		if exp := h.Get("Expires"); exp != "" {
			if t, err := http.ParseTime(exp); err == nil && t.After(now) {
				expiresAt = t
			}
		}
	}
	return expiresAt, noStore
}
