package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHelpers(t *testing.T) {
	cause := errors.New("boom")

	storage := fmt.Errorf("append: %w", NewStorageError("messages.append", cause))
	assert.True(t, IsStorageError(storage))
	assert.ErrorIs(t, storage, cause)
	assert.Contains(t, storage.Error(), "messages.append")

	cred := &CredentialError{Identity: "a@example.com", Err: cause}
	assert.True(t, IsCredentialError(fmt.Errorf("turn: %w", cred)))
	assert.ErrorIs(t, cred, cause)

	limited := &RateLimited{Identity: "a@example.com", Attempts: 3}
	assert.True(t, IsRateLimited(fmt.Errorf("turn: %w", limited)))
	assert.False(t, IsTransient(limited))

	transient := &TransientUpstreamError{Status: 503, Err: cause}
	assert.True(t, IsTransient(transient))
	assert.Contains(t, transient.Error(), "503")
	assert.Contains(t, (&TransientUpstreamError{Err: cause}).Error(), "unavailable")
}

func TestNewStorageError_Nil(t *testing.T) {
	assert.NoError(t, NewStorageError("settings.get", nil))
}
