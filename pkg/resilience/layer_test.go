package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/cache/memory"
	"balance-ledger/pkg/cache/mock"
	"balance-ledger/pkg/metrics"
	metricsmem "balance-ledger/pkg/metrics/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("connection refused")

func tripAfter(n uint32) ResilientConfig {
	return ResilientConfig{
		Timeout: time.Second,
		CircuitBreakerConfig: CircuitBreakerConfig{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts Counts) bool {
				return counts.ConsecutiveFailures >= n
			},
		},
	}
}

func TestDefaultResilientConfig(t *testing.T) {
	cfg := DefaultResilientConfig()

	assert.Equal(t, 100*time.Millisecond, cfg.Timeout)
	require.NotNil(t, cfg.CircuitBreakerConfig.ReadyToTrip)
	assert.False(t, cfg.CircuitBreakerConfig.ReadyToTrip(Counts{Requests: 10, TotalFailures: 10}))
	assert.True(t, cfg.CircuitBreakerConfig.ReadyToTrip(Counts{Requests: 20, TotalFailures: 3}))
	assert.False(t, cfg.CircuitBreakerConfig.ReadyToTrip(Counts{Requests: 20, TotalFailures: 2}))

	tuned := cfg.WithTimeout(time.Second).WithCircuitBreakerTimeout(time.Second)
	assert.Equal(t, time.Second, tuned.Timeout)
	assert.Equal(t, time.Second, tuned.CircuitBreakerConfig.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Timeout, "With* must not mutate the receiver")
}

func TestResilientLayer_PassThrough(t *testing.T) {
	base := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "L1", MaxSize: 10})
	rl := NewResilientLayer(base, DefaultResilientConfig())
	defer rl.Close()
	ctx := context.Background()

	require.NoError(t, rl.Set(ctx, "transaction:1", "tx", time.Minute))
	v, err := rl.Get(ctx, "transaction:1")
	require.NoError(t, err)
	assert.Equal(t, "tx", v)

	require.NoError(t, rl.Delete(ctx, "transaction:1"))
	_, err = rl.Get(ctx, "transaction:1")
	assert.True(t, cache.IsNotFound(err))
	assert.Equal(t, "L1", rl.Name())
}

func TestResilientLayer_MissesDoNotTripCircuit(t *testing.T) {
	rl := NewResilientLayer(mock.NewMockLayer("L2"), tripAfter(3))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := rl.Get(ctx, "transaction:missing")
		require.True(t, cache.IsNotFound(err), "iteration %d: %v", i, err)
	}
	assert.Equal(t, metrics.CircuitClosed, rl.State())
}

func TestResilientLayer_FailuresTripCircuit(t *testing.T) {
	inner := mock.NewMockLayer("L2")
	inner.GetFunc = func(ctx context.Context, key string) (interface{}, error) {
		return nil, errBackend
	}
	collector := metricsmem.NewMemoryCollector()
	rl := NewResilientLayerWithMetrics(inner, tripAfter(3), collector)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rl.Get(ctx, "transaction:1")
		assert.ErrorIs(t, err, errBackend)
	}

	_, err := rl.Get(ctx, "transaction:1")
	assert.ErrorIs(t, err, cache.ErrCircuitOpen)
	assert.Equal(t, 3, inner.GetCalls(), "open circuit must not reach the backend")
	assert.Equal(t, metrics.CircuitOpen, rl.State())

	lm := collector.Layer("L2")
	require.NotNil(t, lm)
	assert.Equal(t, int64(1), lm.CircuitOpens)
	assert.Equal(t, int64(4), lm.Misses)
}

func TestResilientLayer_Timeout(t *testing.T) {
	inner := mock.NewMockLayer("slow")
	inner.GetFunc = func(ctx context.Context, key string) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	rl := NewResilientLayer(inner, tripAfter(5).WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := rl.Get(context.Background(), "transaction:1")
	assert.ErrorIs(t, err, cache.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilientLayer_SetAndDeleteFailures(t *testing.T) {
	inner := mock.NewMockLayer("L2")
	inner.SetFunc = func(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
		return errBackend
	}
	inner.DeleteFunc = func(ctx context.Context, key string) error {
		return errBackend
	}
	collector := metricsmem.NewMemoryCollector()
	rl := NewResilientLayerWithMetrics(inner, tripAfter(10), collector)
	ctx := context.Background()

	assert.ErrorIs(t, rl.Set(ctx, "transaction:1", 1, time.Minute), errBackend)
	assert.ErrorIs(t, rl.Delete(ctx, "transaction:1"), errBackend)

	lm := collector.Layer("L2")
	require.NotNil(t, lm)
	assert.Equal(t, int64(1), lm.Sets)
	assert.Equal(t, int64(1), lm.Deletes)
	assert.Equal(t, int64(2), lm.Errors)
}
