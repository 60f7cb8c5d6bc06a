package idemflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPtr(t *testing.T) {
	ptr := ToPtr(42)
	require.NotNil(t, ptr)
	assert.Equal(t, 42, *ptr)

	s := ToPtr("test")
	require.NotNil(t, s)
	assert.Equal(t, "test", *s)
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name      string
		baseDelay time.Duration
		attempt   int
		strategy  BackoffStrategy
		want      time.Duration
	}{
		{"first attempt never waits", 100 * time.Millisecond, 0, BackoffExponential, 0},
		{"linear attempt 1", 100 * time.Millisecond, 1, BackoffLinear, 100 * time.Millisecond},
		{"linear attempt 3", 100 * time.Millisecond, 3, BackoffLinear, 300 * time.Millisecond},
		{"exponential attempt 1", 100 * time.Millisecond, 1, BackoffExponential, 100 * time.Millisecond},
		{"exponential attempt 4", 100 * time.Millisecond, 4, BackoffExponential, 800 * time.Millisecond},
		{"none", 100 * time.Millisecond, 5, BackoffNone, 0},
		{"unknown defaults to linear", 50 * time.Millisecond, 2, BackoffStrategy("OTHER"), 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateBackoff(tt.baseDelay, tt.attempt, tt.strategy))
		})
	}
}

func TestDecodeRaw(t *testing.T) {
	raw, err := json.Marshal(map[string]int{"total": 7})
	require.NoError(t, err)

	got, err := DecodeRaw[map[string]int](raw)
	require.NoError(t, err)
	assert.Equal(t, 7, got["total"])

	_, err = DecodeRaw[int](nil)
	assert.Error(t, err)

	_, err = DecodeRaw[int](json.RawMessage(`"nope"`))
	assert.Error(t, err)
}
