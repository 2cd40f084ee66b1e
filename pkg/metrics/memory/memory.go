package memory

import (
	"sync"
	"time"

	"balance-ledger/pkg/metrics"
)

// MemoryCollector implements MetricsCollector in memory. Tests use it to assert
// on what the engine and cache chain reported.
type MemoryCollector struct {
	mu sync.RWMutex

	operations   map[string]*OperationMetrics
	layerMetrics map[string]*LayerMetrics

	chainHits        int64
	chainMisses      int64
	chainHitsByLayer map[int]int64
}

// OperationMetrics counts outcomes of one ledger operation.
type OperationMetrics struct {
	Calls     int64
	Outcomes  map[string]int64
	Latencies []time.Duration
}

// LayerMetrics holds metrics for a single cache layer.
type LayerMetrics struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Deletes int64
	Errors  int64

	CircuitState metrics.CircuitState
	CircuitOpens int64

	QueueDepth    int
	DroppedWrites int64
	AsyncWrites   int64
	AsyncErrors   int64
}

// NewMemoryCollector creates an empty collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{
		operations:       make(map[string]*OperationMetrics),
		layerMetrics:     make(map[string]*LayerMetrics),
		chainHitsByLayer: make(map[int]int64),
	}
}

// layer must be called with mu held.
func (mc *MemoryCollector) layer(name string) *LayerMetrics {
	lm, ok := mc.layerMetrics[name]
	if !ok {
		lm = &LayerMetrics{}
		mc.layerMetrics[name] = lm
	}
	return lm
}

// RecordOperation records one ledger operation outcome.
func (mc *MemoryCollector) RecordOperation(operation string, outcome string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	om, ok := mc.operations[operation]
	if !ok {
		om = &OperationMetrics{Outcomes: make(map[string]int64)}
		mc.operations[operation] = om
	}
	om.Calls++
	om.Outcomes[outcome]++
	om.Latencies = append(om.Latencies, duration)
}

// RecordGet records a cache get operation.
func (mc *MemoryCollector) RecordGet(layer string, hit bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	if hit {
		lm.Hits++
	} else {
		lm.Misses++
	}
}

// RecordSet records a cache set operation.
func (mc *MemoryCollector) RecordSet(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.Sets++
	if !success {
		lm.Errors++
	}
}

// RecordDelete records a cache delete operation.
func (mc *MemoryCollector) RecordDelete(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.Deletes++
	if !success {
		lm.Errors++
	}
}

// RecordCircuitState records the current circuit breaker state.
func (mc *MemoryCollector) RecordCircuitState(layer string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	if lm.CircuitState != metrics.CircuitOpen && state == metrics.CircuitOpen {
		lm.CircuitOpens++
	}
	lm.CircuitState = state
}

// RecordQueueDepth records the current async writer queue depth.
func (mc *MemoryCollector) RecordQueueDepth(layer string, depth int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.layer(layer).QueueDepth = depth
}

// RecordWriteDropped records a dropped async write.
func (mc *MemoryCollector) RecordWriteDropped(layer string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.layer(layer).DroppedWrites++
}

// RecordAsyncWrite records an async write operation.
func (mc *MemoryCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.AsyncWrites++
	if !success {
		lm.AsyncErrors++
	}
}

// RecordChainGet records a chain-level get operation.
func (mc *MemoryCollector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if hit {
		mc.chainHits++
		mc.chainHitsByLayer[layerIndex]++
	} else {
		mc.chainMisses++
	}
}

// Operation returns a copy of the metrics recorded for operation, or nil.
func (mc *MemoryCollector) Operation(operation string) *OperationMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	om, ok := mc.operations[operation]
	if !ok {
		return nil
	}
	cp := OperationMetrics{
		Calls:     om.Calls,
		Outcomes:  make(map[string]int64, len(om.Outcomes)),
		Latencies: append([]time.Duration(nil), om.Latencies...),
	}
	for k, v := range om.Outcomes {
		cp.Outcomes[k] = v
	}
	return &cp
}

// Layer returns a copy of the metrics recorded for a cache layer, or nil.
func (mc *MemoryCollector) Layer(name string) *LayerMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if lm, ok := mc.layerMetrics[name]; ok {
		cp := *lm
		return &cp
	}
	return nil
}

// ChainStats returns chain-level hit and miss counts.
func (mc *MemoryCollector) ChainStats() (hits, misses int64) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.chainHits, mc.chainMisses
}

// Reset clears all collected metrics.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.operations = make(map[string]*OperationMetrics)
	mc.layerMetrics = make(map[string]*LayerMetrics)
	mc.chainHits = 0
	mc.chainMisses = 0
	mc.chainHitsByLayer = make(map[int]int64)
}
