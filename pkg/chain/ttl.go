package chain

import (
	"math"
	"time"
)

// TTLStrategy picks the TTL written to each layer of a chain of depth layers.
type TTLStrategy interface {
	TTL(layerIndex, layers int, base time.Duration) time.Duration
}

// UniformTTL writes the same TTL to every layer.
type UniformTTL struct{}

func (UniformTTL) TTL(_, _ int, base time.Duration) time.Duration {
	return base
}

// DecayingTTL shortens the TTL of faster layers by Factor per step, so the
// in-process tier holds entries for less time than the shared one. With
// Factor 0.5 and two layers, L1 gets base/2 and L2 gets base.
type DecayingTTL struct {
	Factor float64
}

func (d DecayingTTL) TTL(layerIndex, layers int, base time.Duration) time.Duration {
	if d.Factor <= 0 || d.Factor >= 1 || layers <= 1 {
		return base
	}
	steps := float64(layers - layerIndex - 1)
	return time.Duration(float64(base) * math.Pow(d.Factor, steps))
}
