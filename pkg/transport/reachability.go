package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Reachability answers whether the network is currently worth trying. The
// answer is advisory: a stale "reachable" costs one failed fetch, a stale
// "unreachable" costs one unnecessarily cache-biased request.
type Reachability interface {
	Reachable() bool
}

// StaticReachability is a fixed answer, for tests and for callers that track
// connectivity themselves.
type StaticReachability bool

// Reachable returns the fixed answer.
func (s StaticReachability) Reachable() bool { return bool(s) }

// ProbeMonitorConfig holds configuration for the dialing monitor.
type ProbeMonitorConfig struct {
	// Address is the TCP endpoint each probe dials.
	Address string
	// Interval is the time between probes.
	Interval time.Duration
	// DialTimeout bounds a single probe.
	DialTimeout time.Duration
	// AssumeReachable is reported until the first probe completes.
	AssumeReachable bool
}

// NewProbeMonitorConfigDefaults provides a config probing a public resolver.
func NewProbeMonitorConfigDefaults() *ProbeMonitorConfig {
	cfg := &ProbeMonitorConfig{
		Address:         "1.1.1.1:53",
		Interval:        30 * time.Second,
		DialTimeout:     3 * time.Second,
		AssumeReachable: true,
	}
	// The following logic allows for overriding defaults via environment variables.
	if addr := os.Getenv("IMAGELOADER_PROBE_ADDR"); addr != "" {
		cfg.Address = addr
	}
	if iv := os.Getenv("IMAGELOADER_PROBE_INTERVAL"); iv != "" {
		if val, err := time.ParseDuration(iv); err == nil && val > 0 {
			cfg.Interval = val
		}
	}
	return cfg
}

// ProbeMonitor reports reachability by periodically dialing a TCP endpoint.
// The answer is cached between probes so Reachable is a single atomic load.
type ProbeMonitor struct {
	cfg         ProbeMonitorConfig
	logger      zerolog.Logger
	reachable   atomic.Bool
	stopOnce    sync.Once
	cancelProbe context.CancelFunc
	doneChan    chan struct{}
}

// NewProbeMonitor creates a monitor; probing begins on Start.
func NewProbeMonitor(cfg *ProbeMonitorConfig, logger zerolog.Logger) (*ProbeMonitor, error) {
	if cfg == nil {
		cfg = NewProbeMonitorConfigDefaults()
	}
	if cfg.Address == "" {
		return nil, errors.New("probe monitor requires an address to dial")
	}
	if cfg.Interval <= 0 || cfg.DialTimeout <= 0 {
		return nil, errors.New("probe monitor requires positive interval and dial timeout")
	}
	m := &ProbeMonitor{
		cfg:      *cfg,
		logger:   logger.With().Str("component", "ProbeMonitor").Str("probe_address", cfg.Address).Logger(),
		doneChan: make(chan struct{}),
	}
	m.reachable.Store(cfg.AssumeReachable)
	return m, nil
}

// Reachable returns the most recent probe verdict.
func (m *ProbeMonitor) Reachable() bool {
	return m.reachable.Load()
}

// Start launches the probe loop. The first probe fires immediately.
func (m *ProbeMonitor) Start(ctx context.Context) error {
	m.logger.Info().Dur("interval", m.cfg.Interval).Msg("Starting reachability probes...")
	probeCtx, cancel := context.WithCancel(ctx)
	m.cancelProbe = cancel

	go func() {
		defer close(m.doneChan)
		defer m.logger.Info().Msg("Probe loop stopped.")

		m.probe(probeCtx)
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.probe(probeCtx)
			case <-probeCtx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop halts probing and waits for the loop to exit, honoring the context's
// deadline. The last verdict stays readable after Stop.
func (m *ProbeMonitor) Stop(ctx context.Context) error {
	var err error
	m.stopOnce.Do(func() {
		m.logger.Info().Msg("Stopping reachability probes...")
		if m.cancelProbe != nil {
			m.cancelProbe()
		}
		select {
		case <-m.doneChan:
		case <-ctx.Done():
			m.logger.Error().Msg("Timeout waiting for probe loop to stop.")
			err = ctx.Err()
		}
	})
	return err
}

// probe dials once and records the verdict, logging only transitions.
func (m *ProbeMonitor) probe(ctx context.Context) {
	dialer := net.Dialer{Timeout: m.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.Address)
	reachable := err == nil
	if conn != nil {
		_ = conn.Close()
	}
	previous := m.reachable.Swap(reachable)
	if previous != reachable {
		m.logger.Info().Bool("reachable", reachable).Msg("Network reachability changed.")
	}
}
