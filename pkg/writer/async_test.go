package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"balance-ledger/pkg/cache/memory"
	"balance-ledger/pkg/cache/mock"
	metricsmem "balance-ledger/pkg/metrics/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newL1(t *testing.T) *memory.MemoryCache {
	t.Helper()
	c := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L1", MaxSize: 10000})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewAsyncWriter_Defaults(t *testing.T) {
	w := NewAsyncWriter(newL1(t), AsyncWriterConfig{})
	defer w.Close()

	assert.Equal(t, 1000, w.config.QueueSize)
	assert.Equal(t, 2, w.config.Workers)
	assert.Equal(t, 10*time.Millisecond, w.config.MaxWaitTime)
	assert.Equal(t, 5*time.Second, w.config.ReportInterval)
}

func TestAsyncWriter_WriteThenFlush(t *testing.T) {
	l1 := newL1(t)
	w := NewAsyncWriter(l1, AsyncWriterConfig{QueueSize: 100, Workers: 4})
	defer w.Close()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, w.Write(ctx, fmt.Sprintf("transaction:%d", i), i, time.Minute))
	}
	require.NoError(t, w.Flush(time.Second))

	for i := 0; i < 50; i++ {
		v, err := l1.Get(ctx, fmt.Sprintf("transaction:%d", i))
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, int64(50), w.Stats().TotalWrites)
}

func TestAsyncWriter_ConcurrentWrites(t *testing.T) {
	l1 := newL1(t)
	w := NewAsyncWriter(l1, AsyncWriterConfig{QueueSize: 1000, Workers: 4, MaxWaitTime: time.Second})
	defer w.Close()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, w.Write(context.Background(), fmt.Sprintf("transaction:%d-%d", g, i), i, time.Minute))
			}
		}(g)
	}
	wg.Wait()

	require.NoError(t, w.Flush(2*time.Second))
	assert.Equal(t, 500, l1.Len())
}

func TestAsyncWriter_Backpressure(t *testing.T) {
	release := make(chan struct{})
	blocked := mock.NewMockLayer("slow")
	blocked.SetFunc = func(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
		<-release
		return nil
	}
	collector := metricsmem.NewMemoryCollector()
	w := NewAsyncWriterWithMetrics(blocked, AsyncWriterConfig{QueueSize: 1, Workers: 1, MaxWaitTime: time.Millisecond}, collector)
	defer func() {
		close(release)
		w.Close()
	}()
	ctx := context.Background()

	var dropped int
	for i := 0; i < 10; i++ {
		if errors.Is(w.Write(ctx, fmt.Sprintf("transaction:%d", i), i, time.Minute), ErrQueueFull) {
			dropped++
		}
	}

	assert.Greater(t, dropped, 0)
	assert.Equal(t, int64(dropped), w.Stats().DroppedWrites)
	require.NotNil(t, collector.Layer("slow"))
	assert.Equal(t, int64(dropped), collector.Layer("slow").DroppedWrites)
}

func TestAsyncWriter_FailedWritesAreCounted(t *testing.T) {
	failing := mock.NewMockLayer("L1")
	failing.SetFunc = func(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
		return errors.New("boom")
	}
	collector := metricsmem.NewMemoryCollector()
	w := NewAsyncWriterWithMetrics(failing, AsyncWriterConfig{}, collector)
	defer w.Close()

	require.NoError(t, w.Write(context.Background(), "transaction:1", 1, time.Minute))
	require.NoError(t, w.Flush(time.Second))

	assert.Equal(t, int64(1), w.Stats().FailedWrites)
	assert.Equal(t, int64(1), collector.Layer("L1").AsyncErrors)
}

func TestAsyncWriter_FlushTimeout(t *testing.T) {
	release := make(chan struct{})
	blocked := mock.NewMockLayer("slow")
	blocked.SetFunc = func(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
		<-release
		return nil
	}
	w := NewAsyncWriter(blocked, AsyncWriterConfig{Workers: 1})
	defer func() {
		close(release)
		w.Close()
	}()

	require.NoError(t, w.Write(context.Background(), "transaction:1", 1, time.Minute))
	assert.ErrorIs(t, w.Flush(20*time.Millisecond), ErrFlushTimeout)
}

func TestAsyncWriter_CloseDrainsQueue(t *testing.T) {
	l1 := newL1(t)
	w := NewAsyncWriter(l1, AsyncWriterConfig{QueueSize: 100, Workers: 1})

	for i := 0; i < 20; i++ {
		require.NoError(t, w.Write(context.Background(), fmt.Sprintf("transaction:%d", i), i, time.Minute))
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.Equal(t, 20, l1.Len())
	assert.ErrorIs(t, w.Write(context.Background(), "transaction:late", 1, time.Minute), ErrWriterClosed)
}

func TestAsyncWriter_CancelledContext(t *testing.T) {
	w := NewAsyncWriter(newL1(t), AsyncWriterConfig{})
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Write(ctx, "transaction:1", 1, time.Minute), context.Canceled)
}

func TestAsyncWriter_CloseDuringWritesStrandsNothing(t *testing.T) {
	for round := 0; round < 20; round++ {
		l1 := newL1(t)
		w := NewAsyncWriter(l1, AsyncWriterConfig{QueueSize: 1000, Workers: 2})

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					err := w.Write(context.Background(), fmt.Sprintf("transaction:%d-%d", i, j), j, time.Minute)
					if errors.Is(err, ErrWriterClosed) {
						return
					}
					if err == nil {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}
			}(i)
		}

		require.NoError(t, w.Close())
		wg.Wait()

		assert.Zero(t, w.pending.Load())
		assert.NoError(t, w.Flush(50*time.Millisecond))
		assert.Equal(t, accepted, l1.Len())
	}
}
