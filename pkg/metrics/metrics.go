package metrics

import (
	"time"
)

// MetricsCollector receives measurements from the ledger engine and from the
// transaction read cache. Implementations export them to a backend (Prometheus)
// or keep them in memory for tests.
type MetricsCollector interface {
	// Ledger operations. outcome is "SUCCESS" or the ledger error code.
	RecordOperation(operation string, outcome string, duration time.Duration)

	// Transaction cache layers
	RecordGet(layer string, hit bool, duration time.Duration)
	RecordSet(layer string, success bool, duration time.Duration)
	RecordDelete(layer string, success bool, duration time.Duration)

	// Circuit breaker
	RecordCircuitState(layer string, state CircuitState)

	// Async cache warm-up
	RecordQueueDepth(layer string, depth int)
	RecordWriteDropped(layer string)
	RecordAsyncWrite(layer string, success bool, duration time.Duration)

	// Chain-level lookups
	RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration)
}

// OutcomeSuccess is the outcome label for operations that returned no error.
const OutcomeSuccess = "SUCCESS"

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the layer has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards everything. It is the default when no collector is configured.
type NoOpCollector struct{}

func (NoOpCollector) RecordOperation(operation string, outcome string, duration time.Duration) {}

func (NoOpCollector) RecordGet(layer string, hit bool, duration time.Duration) {}

func (NoOpCollector) RecordSet(layer string, success bool, duration time.Duration) {}

func (NoOpCollector) RecordDelete(layer string, success bool, duration time.Duration) {}

func (NoOpCollector) RecordCircuitState(layer string, state CircuitState) {}

func (NoOpCollector) RecordQueueDepth(layer string, depth int) {}

func (NoOpCollector) RecordWriteDropped(layer string) {}

func (NoOpCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {}

func (NoOpCollector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {}
