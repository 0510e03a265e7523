package imageloader

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// completionDispatcher delivers queued completions one at a time on a single
// goroutine. Every callback the loader fires passes through here, so callers
// observe completions serially and never need their own locking around them.
type completionDispatcher struct {
	logger   zerolog.Logger
	queue    chan func()
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newCompletionDispatcher(buffer int, logger zerolog.Logger) *completionDispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &completionDispatcher{
		logger: logger.With().Str("component", "completionDispatcher").Logger(),
		queue:  make(chan func(), buffer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// start launches the delivery goroutine. It runs until stop is requested or
// ctx is cancelled, draining whatever is already queued before exiting.
func (d *completionDispatcher) start(ctx context.Context) {
	go func() {
		defer close(d.doneCh)
		for {
			select {
			case fn := <-d.queue:
				fn()
			case <-d.stopCh:
				d.drain()
				return
			case <-ctx.Done():
				// Unblock submitters before draining.
				d.requestStop()
				d.drain()
				return
			}
		}
	}()
}

// submit queues fn for delivery. A submission racing with shutdown is
// dropped; shutdown is the only event allowed to swallow a delivery.
func (d *completionDispatcher) submit(fn func()) {
	select {
	case d.queue <- fn:
	case <-d.stopCh:
		d.logger.Debug().Msg("Dispatcher stopped; dropping completion.")
	}
}

// requestStop ends intake without waiting for the loop.
func (d *completionDispatcher) requestStop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}

// stop ends intake and waits for the delivery goroutine to finish draining,
// honoring the context's deadline.
func (d *completionDispatcher) stop(ctx context.Context) error {
	d.requestStop()
	select {
	case <-d.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain delivers everything buffered at shutdown time.
func (d *completionDispatcher) drain() {
	for {
		select {
		case fn := <-d.queue:
			fn()
		default:
			return
		}
	}
}
