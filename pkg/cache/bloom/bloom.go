package bloom

import (
	"context"
	"sync"
	"time"

	"balance-ledger/pkg/cache"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomLayer screens lookups against a remote layer with a bloom filter of the
// keys this process has written. A rejected key is reported as a miss without a
// network round trip; the caller then falls back to the transaction store.
// Keys written by other instances are therefore only found after a local write.
type BloomLayer struct {
	layer             cache.CacheLayer
	mu                sync.Mutex
	filter            *bloom.BloomFilter
	expectedItems     uint
	falsePositiveRate float64

	totalQueries   uint64
	bloomRejected  uint64
	falsePositives uint64
}

// NewBloomLayer wraps layer. Zero or out-of-range parameters fall back to
// 10000 expected items and a 1% false positive rate.
func NewBloomLayer(layer cache.CacheLayer, expectedItems uint, falsePositiveRate float64) *BloomLayer {
	if expectedItems == 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	return &BloomLayer{
		layer:             layer,
		filter:            bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		expectedItems:     expectedItems,
		falsePositiveRate: falsePositiveRate,
	}
}

// Name returns the name of the underlying cache layer.
func (bl *BloomLayer) Name() string {
	return "bloom(" + bl.layer.Name() + ")"
}

// Get consults the filter before the wrapped layer.
func (bl *BloomLayer) Get(ctx context.Context, key string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bl.mu.Lock()
	bl.totalQueries++
	if !bl.filter.TestString(key) {
		bl.bloomRejected++
		bl.mu.Unlock()
		return nil, cache.ErrKeyNotFound
	}
	bl.mu.Unlock()

	value, err := bl.layer.Get(ctx, key)
	if cache.IsNotFound(err) {
		bl.mu.Lock()
		bl.falsePositives++
		bl.mu.Unlock()
	}

	return value, err
}

// Set records key in the filter and writes through.
func (bl *BloomLayer) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bl.mu.Lock()
	bl.filter.AddString(key)
	bl.mu.Unlock()

	return bl.layer.Set(ctx, key, value, ttl)
}

// Delete removes key from the wrapped layer. Bloom filters cannot forget keys.
func (bl *BloomLayer) Delete(ctx context.Context, key string) error {
	return bl.layer.Delete(ctx, key)
}

// Close closes the underlying cache layer.
func (bl *BloomLayer) Close() error {
	return bl.layer.Close()
}

// Reset empties the filter and statistics.
func (bl *BloomLayer) Reset() {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	bl.filter = bloom.NewWithEstimates(bl.expectedItems, bl.falsePositiveRate)
	bl.totalQueries = 0
	bl.bloomRejected = 0
	bl.falsePositives = 0
}

// Stats returns statistics about the bloom filter.
func (bl *BloomLayer) Stats() BloomStats {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	stats := BloomStats{
		TotalQueries:   bl.totalQueries,
		BloomRejected:  bl.bloomRejected,
		FalsePositives: bl.falsePositives,
		FilterCapacity: bl.filter.Cap(),
	}
	if bl.totalQueries > 0 {
		stats.RejectionRate = float64(bl.bloomRejected) / float64(bl.totalQueries)
		if queried := bl.totalQueries - bl.bloomRejected; queried > 0 {
			stats.FalsePositiveRate = float64(bl.falsePositives) / float64(queried)
		}
	}
	return stats
}

// BloomStats holds statistics about bloom filter performance.
type BloomStats struct {
	TotalQueries      uint64
	BloomRejected     uint64
	FalsePositives    uint64
	RejectionRate     float64
	FalsePositiveRate float64
	FilterCapacity    uint
}
