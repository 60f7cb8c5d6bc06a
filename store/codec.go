package store

import (
	"encoding/json"
	"fmt"
)

func encodeValue[V any](value V) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return data, nil
}

func decodeValue[V any](data []byte) (V, error) {
	var value V
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return value, nil
}
