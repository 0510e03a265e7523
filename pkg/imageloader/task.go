package imageloader

import (
	"sync"
	"sync/atomic"

	"github.com/illmade-knight/go-imageloader/pkg/transport"
)

// LoadingTask is the cancellation handle for one in-flight network fetch. A
// fetch satisfied from cache never creates a task: there is nothing left to
// cancel.
type LoadingTask struct {
	id         string
	resource   string
	op         transport.Operation
	cancelOnce sync.Once
	cancelled  atomic.Bool
}

func newLoadingTask(id, resource string, op transport.Operation) *LoadingTask {
	return &LoadingTask{id: id, resource: resource, op: op}
}

// Cancel aborts the underlying network operation. The first call wins;
// repeated or concurrent calls are no-ops, and cancelling after the fetch
// already completed has no observable effect.
func (t *LoadingTask) Cancel() {
	t.cancelOnce.Do(func() {
		t.cancelled.Store(true)
		t.op.Cancel()
	})
}

// Cancelled reports whether Cancel has been called.
func (t *LoadingTask) Cancelled() bool {
	return t.cancelled.Load()
}

// Resource returns the URL this task is fetching.
func (t *LoadingTask) Resource() string {
	return t.resource
}

// ID returns the identifier correlating this task in logs.
func (t *LoadingTask) ID() string {
	return t.id
}
