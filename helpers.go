package idemflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// ToPtr returns a pointer to the given value
func ToPtr[T any](v T) *T {
	return &v
}

// BackoffStrategy defines retry backoff behavior
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "LINEAR"
	BackoffExponential BackoffStrategy = "EXPONENTIAL"
	BackoffNone        BackoffStrategy = "NONE"
)

// CalculateBackoff calculates the delay before a retry attempt.
// It supports three strategies:
//   - EXPONENTIAL: baseDelay * 2^(attempt-1)
//   - LINEAR: baseDelay * attempt
//   - NONE: no backoff delay
//
// attempt is 0-based, so attempt 0 (the first try) never waits.
func CalculateBackoff(baseDelay time.Duration, attempt int, strategy BackoffStrategy) time.Duration {
	if attempt <= 0 {
		return 0
	}

	switch strategy {
	case BackoffExponential:
		multiplier := 1 << (attempt - 1)
		return baseDelay * time.Duration(multiplier)
	case BackoffNone:
		return 0
	default:
		return baseDelay * time.Duration(attempt)
	}
}

// DecodeRaw unmarshals a JSON value stored in a checkpoint
func DecodeRaw[T any](data json.RawMessage) (T, error) {
	var result T
	if len(data) == 0 {
		return result, fmt.Errorf("no data to decode")
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return result, nil
}
