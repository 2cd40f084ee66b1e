package mock

import (
	"context"
	"sync/atomic"
	"time"

	"balance-ledger/pkg/cache"
)

// MockLayer is a CacheLayer test double. Set the *Func hooks to script behavior;
// unset hooks succeed (Get misses).
type MockLayer struct {
	GetFunc    func(ctx context.Context, key string) (interface{}, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
	CloseFunc  func() error

	name string

	getCalls    atomic.Int64
	setCalls    atomic.Int64
	deleteCalls atomic.Int64
	closeCalls  atomic.Int64
}

// NewMockLayer creates a MockLayer whose Get always misses.
func NewMockLayer(name string) *MockLayer {
	return &MockLayer{name: name}
}

// Get implements CacheLayer.
func (m *MockLayer) Get(ctx context.Context, key string) (interface{}, error) {
	m.getCalls.Add(1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return nil, cache.ErrKeyNotFound
}

// Set implements CacheLayer.
func (m *MockLayer) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.setCalls.Add(1)
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	return nil
}

// Delete implements CacheLayer.
func (m *MockLayer) Delete(ctx context.Context, key string) error {
	m.deleteCalls.Add(1)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

// Name implements CacheLayer.
func (m *MockLayer) Name() string {
	return m.name
}

// Close implements CacheLayer.
func (m *MockLayer) Close() error {
	m.closeCalls.Add(1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *MockLayer) GetCalls() int    { return int(m.getCalls.Load()) }
func (m *MockLayer) SetCalls() int    { return int(m.setCalls.Load()) }
func (m *MockLayer) DeleteCalls() int { return int(m.deleteCalls.Load()) }
func (m *MockLayer) CloseCalls() int  { return int(m.closeCalls.Load()) }
