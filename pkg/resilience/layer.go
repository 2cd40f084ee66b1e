package resilience

import (
	"context"
	"errors"
	"time"

	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/logging"
	"balance-ledger/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ResilientLayer wraps a CacheLayer with a circuit breaker and a per-call
// deadline. A failing cache tier degrades to misses, which the ledger engine
// answers from the transaction store.
type ResilientLayer struct {
	layer   cache.CacheLayer
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.MetricsCollector
	logger  *logging.Logger
}

// NewResilientLayer creates a new resilient layer wrapper around the given cache layer.
func NewResilientLayer(layer cache.CacheLayer, config ResilientConfig) *ResilientLayer {
	return NewResilientLayerWithMetrics(layer, config, metrics.NoOpCollector{})
}

// NewResilientLayerWithMetrics creates a new resilient layer with custom metrics collector.
func NewResilientLayerWithMetrics(layer cache.CacheLayer, config ResilientConfig, metricsCollector metrics.MetricsCollector) *ResilientLayer {
	if metricsCollector == nil {
		metricsCollector = metrics.NoOpCollector{}
	}
	logger := logging.Global().Named("resilience").Named(layer.Name())

	rl := &ResilientLayer{
		layer:   layer,
		timeout: config.Timeout,
		metrics: metricsCollector,
		logger:  logger,
	}

	logger.Info("resilient layer initialized",
		zap.String("layer", layer.Name()),
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", config.CircuitBreakerConfig.MaxRequests),
		zap.Duration("circuit_interval", config.CircuitBreakerConfig.Interval),
		zap.Duration("circuit_timeout", config.CircuitBreakerConfig.Timeout),
	)

	settings := gobreaker.Settings{
		Name:        layer.Name(),
		MaxRequests: config.CircuitBreakerConfig.MaxRequests,
		Interval:    config.CircuitBreakerConfig.Interval,
		Timeout:     config.CircuitBreakerConfig.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if config.CircuitBreakerConfig.ReadyToTrip != nil {
				return config.CircuitBreakerConfig.ReadyToTrip(Counts{
					Requests:             counts.Requests,
					TotalSuccesses:       counts.TotalSuccesses,
					TotalFailures:        counts.TotalFailures,
					ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
					ConsecutiveFailures:  counts.ConsecutiveFailures,
				})
			}
			return counts.ConsecutiveFailures >= 5
		},
		// A miss is a normal answer, not a sick backend.
		IsSuccessful: func(err error) bool {
			return err == nil || cache.IsNotFound(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("layer", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)

			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			rl.metrics.RecordCircuitState(layer.Name(), state)
		},
	}

	rl.cb = gobreaker.NewCircuitBreaker(settings)

	return rl
}

// Name returns the name of the underlying cache layer.
func (rl *ResilientLayer) Name() string {
	return rl.layer.Name()
}

// State reports the breaker state.
func (rl *ResilientLayer) State() metrics.CircuitState {
	switch rl.cb.State() {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// execute runs fn under the deadline and the breaker and normalises the
// resulting error.
func (rl *ResilientLayer) execute(ctx context.Context, op, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	if rl.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rl.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := rl.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err == nil || cache.IsNotFound(err) {
		return result, err
	}

	elapsed := time.Since(start)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		rl.logger.Warn("circuit breaker open - request rejected",
			zap.String("operation", op),
			zap.String("key", key),
		)
		return nil, cache.ErrCircuitOpen
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		rl.logger.Warn("operation timeout",
			zap.String("operation", op),
			zap.String("key", key),
			zap.Duration("timeout", rl.timeout),
			zap.Duration("elapsed", elapsed),
		)
		return nil, cache.ErrTimeout
	default:
		rl.logger.Error(op+" operation failed",
			zap.String("operation", op),
			zap.String("key", key),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return nil, err
	}
}

// Get retrieves a value from the cache with timeout and circuit breaker protection.
func (rl *ResilientLayer) Get(ctx context.Context, key string) (interface{}, error) {
	start := time.Now()
	value, err := rl.execute(ctx, "get", key, func(ctx context.Context) (interface{}, error) {
		return rl.layer.Get(ctx, key)
	})
	rl.metrics.RecordGet(rl.layer.Name(), err == nil, time.Since(start))
	return value, err
}

// Set stores a value in the cache with timeout and circuit breaker protection.
func (rl *ResilientLayer) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	_, err := rl.execute(ctx, "set", key, func(ctx context.Context) (interface{}, error) {
		return nil, rl.layer.Set(ctx, key, value, ttl)
	})
	rl.metrics.RecordSet(rl.layer.Name(), err == nil, time.Since(start))
	return err
}

// Delete removes a value from the cache with timeout and circuit breaker protection.
func (rl *ResilientLayer) Delete(ctx context.Context, key string) error {
	start := time.Now()
	_, err := rl.execute(ctx, "delete", key, func(ctx context.Context) (interface{}, error) {
		return nil, rl.layer.Delete(ctx, key)
	})
	rl.metrics.RecordDelete(rl.layer.Name(), err == nil, time.Since(start))
	return err
}

// Close closes the underlying cache layer.
func (rl *ResilientLayer) Close() error {
	return rl.layer.Close()
}
