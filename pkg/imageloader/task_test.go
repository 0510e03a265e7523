package imageloader

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

// countingOperation records how often Cancel reaches the transport.
type countingOperation struct {
	cancelCount atomic.Int32
}

func (o *countingOperation) Cancel() {
	o.cancelCount.Add(1)
}

func TestLoadingTask_Accessors(t *testing.T) {
	task := newLoadingTask("task-1", "https://example.com/a.png", &countingOperation{})
	assert.Equal(t, "task-1", task.ID())
	assert.Equal(t, "https://example.com/a.png", task.Resource())
	assert.False(t, task.Cancelled())
}

func TestLoadingTask_CancelIsIdempotent(t *testing.T) {
	// Arrange
	op := &countingOperation{}
	task := newLoadingTask("task-1", "https://example.com/a.png", op)

	// Act
	task.Cancel()
	task.Cancel()
	task.Cancel()

	// Assert
	assert.True(t, task.Cancelled())
	assert.Equal(t, int32(1), op.cancelCount.Load(), "only the first Cancel may reach the transport")
}

func TestLoadingTask_ConcurrentCancel(t *testing.T) {
	// Arrange
	op := &countingOperation{}
	task := newLoadingTask("task-1", "https://example.com/a.png", op)

	// Act: many goroutines race to cancel the same task.
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task.Cancel()
		}()
	}
	wg.Wait()

	// Assert
	assert.True(t, task.Cancelled())
	assert.Equal(t, int32(1), op.cancelCount.Load(), "exactly one racer may win")
}
