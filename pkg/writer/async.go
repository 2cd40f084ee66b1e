package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/logging"
	"balance-ledger/pkg/metrics"

	"go.uber.org/zap"
)

// AsyncWriter back-fills faster cache tiers after a lookup was served by a
// slower one. Writes are queued on a bounded channel and applied by a small
// worker pool, so a transaction query never waits on a warm-up write.
type AsyncWriter struct {
	layer      cache.CacheLayer
	queue      chan writeOp
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	// mu orders enqueues before Close; Write holds it shared.
	mu     sync.RWMutex
	closed bool
	config     AsyncWriterConfig
	metrics    metrics.MetricsCollector
	logger     *logging.Logger
	layerName  string

	// pending counts writes enqueued but not yet applied.
	pending       atomic.Int64
	droppedWrites atomic.Int64
	totalWrites   atomic.Int64
	failedWrites  atomic.Int64

	metricsTicker *time.Ticker
	metricsStop   chan struct{}
}

type writeOp struct {
	key   string
	value interface{}
	ttl   time.Duration
}

// AsyncWriterConfig configures the async writer behavior.
type AsyncWriterConfig struct {
	// QueueSize is the bounded queue size (default: 1000)
	QueueSize int

	// Workers is the number of concurrent workers (default: 2)
	Workers int

	// MaxWaitTime is how long Write blocks on a full queue before dropping
	// (default: 10ms).
	MaxWaitTime time.Duration

	// ReportInterval is how often queue depth is reported (default: 5s).
	ReportInterval time.Duration
}

// NewAsyncWriter creates a new async writer with bounded queue and worker pool.
// The writer starts processing immediately and must be closed with Close().
func NewAsyncWriter(layer cache.CacheLayer, config AsyncWriterConfig) *AsyncWriter {
	return NewAsyncWriterWithMetrics(layer, config, metrics.NoOpCollector{})
}

// NewAsyncWriterWithMetrics creates a new async writer with custom metrics collector.
func NewAsyncWriterWithMetrics(layer cache.CacheLayer, config AsyncWriterConfig, metricsCollector metrics.MetricsCollector) *AsyncWriter {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = 5 * time.Second
	}
	if metricsCollector == nil {
		metricsCollector = metrics.NoOpCollector{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &AsyncWriter{
		layer:         layer,
		queue:         make(chan writeOp, config.QueueSize),
		ctx:           ctx,
		cancelFunc:    cancel,
		config:        config,
		metrics:       metricsCollector,
		logger:        logging.Global().Named("writer").Named(layer.Name()),
		layerName:     layer.Name(),
		metricsTicker: time.NewTicker(config.ReportInterval),
		metricsStop:   make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}

	go w.reportMetrics()

	return w
}

// Write enqueues a write. If the queue is full it waits up to MaxWaitTime and
// then drops the write with ErrQueueFull.
func (w *AsyncWriter) Write(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	op := writeOp{key: key, value: value, ttl: ttl}

	timer := time.NewTimer(w.config.MaxWaitTime)
	defer timer.Stop()

	w.pending.Add(1)
	select {
	case w.queue <- op:
		w.totalWrites.Add(1)
		return nil
	case <-timer.C:
		w.pending.Add(-1)
		w.droppedWrites.Add(1)
		w.metrics.RecordWriteDropped(w.layerName)
		w.logger.Debug("warm-up write dropped", zap.String("key", key))
		return ErrQueueFull
	case <-ctx.Done():
		w.pending.Add(-1)
		return ctx.Err()
	}
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()

	for {
		select {
		case op := <-w.queue:
			w.apply(op)
		case <-w.ctx.Done():
			// Drain what is already queued before exiting.
			for {
				select {
				case op := <-w.queue:
					w.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (w *AsyncWriter) apply(op writeOp) {
	defer w.pending.Add(-1)

	start := time.Now()
	err := w.layer.Set(context.Background(), op.key, op.value, op.ttl)
	w.metrics.RecordAsyncWrite(w.layerName, err == nil, time.Since(start))

	if err != nil {
		w.failedWrites.Add(1)
		w.logger.Warn("warm-up write failed",
			zap.String("key", op.key),
			zap.Error(err),
		)
	}
}

// Flush waits until every enqueued write has been applied, or returns
// ErrFlushTimeout.
func (w *AsyncWriter) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for w.pending.Load() > 0 {
		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// Close stops accepting writes, applies the queued ones and waits for the
// workers. It is safe to call more than once.
func (w *AsyncWriter) Close() error {
	w.closeOnce.Do(func() {
		// Wait for in-flight enqueues so the workers drain everything.
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		close(w.metricsStop)
		w.metricsTicker.Stop()
		w.cancelFunc()
		w.wg.Wait()
	})
	return nil
}

func (w *AsyncWriter) reportMetrics() {
	for {
		select {
		case <-w.metricsTicker.C:
			w.metrics.RecordQueueDepth(w.layerName, len(w.queue))
		case <-w.metricsStop:
			return
		}
	}
}

// Stats returns current statistics about the async writer.
func (w *AsyncWriter) Stats() AsyncWriterStats {
	return AsyncWriterStats{
		QueueDepth:    len(w.queue),
		DroppedWrites: w.droppedWrites.Load(),
		TotalWrites:   w.totalWrites.Load(),
		FailedWrites:  w.failedWrites.Load(),
	}
}
