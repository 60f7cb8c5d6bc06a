package idemflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key identifies one logical operation instance
type Key string

// String returns the string representation
func (k Key) String() string {
	return string(k)
}

// ContentKey derives a key from the SHA-256 of the JSON encoding of input
func ContentKey(input any) (Key, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to encode input for content key: %w", err)
	}
	hash := sha256.Sum256(data)
	return Key(hex.EncodeToString(hash[:])), nil
}

// DeriveKey builds the key for an invocation according to the configured strategy.
// userKey is the caller-supplied part and may be empty for content-based keys.
func DeriveKey(strategy KeyStrategy, userKey string, input any) (Key, error) {
	userKey = strings.TrimSpace(userKey)

	switch strategy.Kind {
	case KeyStrategyUserProvided:
		if userKey == "" {
			return "", NewValidationError("user-provided key strategy requires a key")
		}
		return Key(userKey), nil

	case KeyStrategyHybrid:
		if !strategy.UserKeyPrefix && !strategy.ContentSuffix {
			return "", NewValidationError("hybrid key strategy needs a prefix or a suffix")
		}
		var parts []string
		if strategy.UserKeyPrefix {
			if userKey == "" {
				return "", NewValidationError("hybrid key strategy requires a user key prefix")
			}
			parts = append(parts, userKey)
		}
		if strategy.ContentSuffix {
			content, err := ContentKey(input)
			if err != nil {
				return "", NewUnexpectedError("failed to derive content suffix", err)
			}
			parts = append(parts, string(content))
		}
		return Key(strings.Join(parts, ":")), nil

	default:
		content, err := ContentKey(input)
		if err != nil {
			return "", NewUnexpectedError("failed to derive content key", err)
		}
		return content, nil
	}
}

// Fingerprint hashes the JSON encoding of input with xxhash64. It is stored next to a
// result so a later call can tell whether the same key arrived with a different input.
func Fingerprint(input any) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to encode input for fingerprint: %w", err)
	}
	return FingerprintBytes(data), nil
}

// FingerprintBytes hashes raw bytes the same way Fingerprint hashes encoded input
func FingerprintBytes(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}
