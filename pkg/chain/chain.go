package chain

import (
	"context"
	"errors"
	"strings"
	"time"

	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/logging"
	"balance-ledger/pkg/metrics"
	"balance-ledger/pkg/resilience"
	"balance-ledger/pkg/writer"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Chain manages multiple cache layers with automatic fallback and warm-up.
// Layers are ordered from fastest (L1) to slowest (LN).
type Chain struct {
	layers      []cache.CacheLayer
	writers     []*writer.AsyncWriter
	sf          singleflight.Group
	ttlStrategy TTLStrategy
	warmUpTTL   time.Duration
	metrics     metrics.MetricsCollector
	logger      *logging.Logger
}

// ChainConfig configures a chain. Zero values select the defaults.
type ChainConfig struct {
	// ResilientConfigs apply per layer index; missing entries use
	// resilience.DefaultResilientConfig.
	ResilientConfigs []resilience.ResilientConfig
	// Writer configures the warm-up writer of every layer.
	Writer writer.AsyncWriterConfig
	// TTLStrategy distributes a Set TTL over the layers (default UniformTTL).
	TTLStrategy TTLStrategy
	// WarmUpTTL is the base TTL used when back-filling after a deeper hit
	// (default 5m).
	WarmUpTTL time.Duration
	Metrics   metrics.MetricsCollector
}

// New creates a chain with default configuration.
func New(layers ...cache.CacheLayer) (*Chain, error) {
	return NewWithConfig(ChainConfig{}, layers...)
}

// NewWithConfig creates a chain. Every layer is wrapped with resilience
// protection and gets its own warm-up writer.
func NewWithConfig(config ChainConfig, layers ...cache.CacheLayer) (*Chain, error) {
	if len(layers) == 0 {
		return nil, errors.New("chain: at least one layer required")
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}
	if config.TTLStrategy == nil {
		config.TTLStrategy = UniformTTL{}
	}
	if config.WarmUpTTL <= 0 {
		config.WarmUpTTL = 5 * time.Minute
	}

	resilientLayers := make([]cache.CacheLayer, len(layers))
	writers := make([]*writer.AsyncWriter, len(layers))
	for i, layer := range layers {
		rc := resilience.DefaultResilientConfig()
		if i < len(config.ResilientConfigs) {
			rc = config.ResilientConfigs[i]
		}
		resilientLayers[i] = resilience.NewResilientLayerWithMetrics(layer, rc, config.Metrics)
		writers[i] = writer.NewAsyncWriterWithMetrics(resilientLayers[i], config.Writer, config.Metrics)
	}

	c := &Chain{
		layers:      resilientLayers,
		writers:     writers,
		ttlStrategy: config.TTLStrategy,
		warmUpTTL:   config.WarmUpTTL,
		metrics:     config.Metrics,
		logger:      logging.Global().Named("chain"),
	}
	c.logger.Info("cache chain initialized", zap.String("layers", c.String()))

	return c, nil
}

// Get traverses layers in order until a hit and schedules warm-up of the
// layers above it. Concurrent Gets for one key share a single traversal.
func (c *Chain) Get(ctx context.Context, key string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.getWithFallback(ctx, key)
	})

	return result, err
}

func (c *Chain) getWithFallback(ctx context.Context, key string) (interface{}, error) {
	start := time.Now()
	var lastErr error

	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := layer.Get(ctx, key)
		if err != nil {
			// Misses, timeouts and open circuits all fall through to the next layer.
			lastErr = err
			if !cache.IsNotFound(err) {
				c.logger.Debug("layer unavailable, falling through",
					zap.String("layer", layer.Name()),
					zap.String("error_type", cache.ClassifyError(err)),
				)
			}
			continue
		}

		c.metrics.RecordChainGet(true, i, time.Since(start))
		if i > 0 {
			c.warmUpperLayers(ctx, key, value, i)
		}
		return value, nil
	}

	c.metrics.RecordChainGet(false, -1, time.Since(start))
	if lastErr == nil || cache.IsNotFound(lastErr) {
		return nil, cache.ErrKeyNotFound
	}
	return nil, lastErr
}

func (c *Chain) warmUpperLayers(ctx context.Context, key string, value interface{}, hitIndex int) {
	for i := hitIndex - 1; i >= 0; i-- {
		ttl := c.ttlStrategy.TTL(i, len(c.layers), c.warmUpTTL)
		// Dropped warm-ups are counted by the writer.
		_ = c.writers[i].Write(context.WithoutCancel(ctx), key, value, ttl)
	}
}

// Set writes the value to all layers. Every layer is attempted; the errors
// are joined.
func (c *Chain) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var errs []error

	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := layer.Set(ctx, key, value, c.ttlStrategy.TTL(i, len(c.layers), ttl)); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Delete removes the key from all layers.
func (c *Chain) Delete(ctx context.Context, key string) error {
	var errs []error

	for _, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := layer.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Flush waits for pending warm-up writes.
func (c *Chain) Flush(timeout time.Duration) error {
	for _, w := range c.writers {
		if err := w.Flush(timeout); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the warm-up writers, then closes every layer.
func (c *Chain) Close() error {
	var errs []error

	for _, w := range c.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, layer := range c.layers {
		if err := layer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Layers returns a copy of the layers slice for inspection.
func (c *Chain) Layers() []cache.CacheLayer {
	layers := make([]cache.CacheLayer, len(c.layers))
	copy(layers, c.layers)
	return layers
}

// Len returns the number of layers in the chain.
func (c *Chain) Len() int {
	return len(c.layers)
}

func (c *Chain) String() string {
	names := make([]string, len(c.layers))
	for i, layer := range c.layers {
		names[i] = layer.Name()
	}
	return "chain(" + strings.Join(names, " -> ") + ")"
}
