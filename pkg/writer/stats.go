package writer

import "errors"

// AsyncWriterStats provides statistics about async writer operations.
type AsyncWriterStats struct {
	// QueueDepth is the current number of queued writes.
	QueueDepth int

	// DroppedWrites counts writes dropped due to backpressure.
	DroppedWrites int64

	// TotalWrites counts writes accepted into the queue.
	TotalWrites int64

	// FailedWrites counts accepted writes the layer rejected.
	FailedWrites int64
}

var (
	ErrQueueFull    = errors.New("writer: queue full, write dropped")
	ErrWriterClosed = errors.New("writer: writer is closed")
	ErrFlushTimeout = errors.New("writer: flush timeout exceeded")
)
