package idemflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodes(t *testing.T) {
	cause := errors.New("connection reset")

	storageErr := NewStorageError("get", cause)
	assert.True(t, IsStorageError(storageErr))
	assert.ErrorIs(t, storageErr, cause)
	assert.Contains(t, storageErr.Error(), "[STORAGE_ERROR] storage get failed")

	conflict := NewConflictError("k1", "busy")
	assert.True(t, IsConflictError(conflict))
	assert.False(t, IsTimeoutError(conflict))
	assert.Contains(t, conflict.Error(), "(key: k1)")

	timeout := NewTimeoutError("k1", time.Second)
	assert.True(t, IsConflictError(timeout))
	assert.True(t, IsTimeoutError(timeout))
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)

	mismatch := NewMismatchError("k1")
	assert.True(t, IsConflictError(mismatch))
	assert.Equal(t, Key("k1"), mismatch.Key)

	assert.Equal(t, ErrCodeUnexpected, CodeOf(NewUnexpectedError("boom", nil)))
	assert.True(t, IsValidationError(NewValidationError("bad")))
	assert.Equal(t, "", CodeOf(cause))
}

func TestCodeOfWrapped(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewStorageError("set", nil))
	assert.True(t, IsStorageError(wrapped))
}

func TestAsStorageError(t *testing.T) {
	assert.NoError(t, AsStorageError("get", nil))

	plain := errors.New("disk full")
	got := AsStorageError("set", plain)
	assert.True(t, IsStorageError(got))
	assert.ErrorIs(t, got, plain)

	validation := NewValidationError("bad")
	assert.Same(t, validation, AsStorageError("set", validation))
}
