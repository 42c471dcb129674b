package poolerrors

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCapturesStack(t *testing.T) {
	err := New(ErrorTypeClosed, "pool already closed")

	require.NotEmpty(t, err.Stack)
	assert.Contains(t, err.Stack[0].Function, "TestNewCapturesStack")
	assert.Equal(t, "closed: pool already closed", err.Error())
}

func TestWrapPreservesStackAndCause(t *testing.T) {
	inner := New(ErrorTypeBackend, "connection refused")
	outer := Wrap(inner, ErrorTypeCreation, "failed to open reader")

	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, errors.Is(outer, inner))
	assert.True(t, IsType(outer, ErrorTypeCreation))
	assert.Equal(t, "creation: failed to open reader: backend: connection refused", outer.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "nothing"))
}

func TestWithDetail(t *testing.T) {
	err := Newf(ErrorTypeTimeout, "waited %s", "5ms").
		WithDetail("pool", "users").
		WithDetail("waiters", 3)

	assert.Equal(t, "timeout: waited 5ms", err.Error())
	assert.Equal(t, "users", err.Details["pool"])
	assert.Equal(t, 3, err.Details["waiters"])
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		exhausted bool
		retryable bool
	}{
		{"exhausted", New(ErrorTypeExhausted, "x"), true, true},
		{"timeout", New(ErrorTypeTimeout, "x"), true, true},
		{"creation", Wrap(io.EOF, ErrorTypeCreation, "x"), false, true},
		{"closed", New(ErrorTypeClosed, "x"), false, false},
		{"invalid return", New(ErrorTypeInvalidReturn, "x"), false, false},
		{"plain", io.EOF, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.exhausted, IsExhausted(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}
