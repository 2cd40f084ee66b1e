package cache

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHelpers(t *testing.T) {
	wrapped := fmt.Errorf("redis get: %w", ErrKeyNotFound)

	assert.True(t, IsNotFound(ErrKeyNotFound))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsNotFound(ErrTimeout))

	assert.True(t, IsTimeout(WrapError(ErrTimeout, "L2", "get")))
	assert.True(t, IsCircuitOpen(ErrCircuitOpen))
	assert.False(t, IsCircuitOpen(nil))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"circuit open", ErrCircuitOpen, "circuit_breaker_open"},
		{"timeout", WrapError(ErrTimeout, "L1", "get"), "timeout"},
		{"not found", ErrKeyNotFound, "key_not_found"},
		{"invalid key", ErrInvalidKey, "invalid_key"},
		{"dial", errors.New("dial tcp 127.0.0.1:6379: Connection refused"), "connection"},
		{"json", errors.New("redis get: failed to unmarshal: bad"), "serialization"},
		{"backend", errors.New("redis: READONLY"), "backend"},
		{"other", errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, "L1", "get"))

	err := WrapError(ErrKeyNotFound, "L2-Redis", "get")
	assert.EqualError(t, err, "cache layer L2-Redis get: cache: key not found")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
