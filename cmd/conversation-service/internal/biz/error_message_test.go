package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"neurocopilot/cmd/conversation-service/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"rate limited", fmt.Errorf("turn: %w", &domain.RateLimited{Identity: "a", Attempts: 3}), CategoryRateLimit},
		{"credential", &domain.CredentialError{Identity: "a", Err: errors.New("invalid_grant")}, CategoryTokenExpired},
		{"network", &domain.TransientUpstreamError{Err: errors.New("connection refused")}, CategoryNetwork},
		{"server error is not network", &domain.TransientUpstreamError{Status: 500, Err: errors.New("boom")}, CategoryUnknown},
		{"timeout", fmt.Errorf("generate: %w", context.DeadlineExceeded), CategoryTimeout},
		{"payload", domain.ErrPayloadTooLarge, CategoryFileTooLarge},
		{"other", errors.New("something odd"), CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.err))
		})
	}
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, categoryMessages[CategoryRateLimit], UserMessage(&domain.RateLimited{}))

	long := errors.New(strings.Repeat("é", 500))
	msg := UserMessage(long)
	assert.True(t, strings.HasPrefix(msg, "❌ Something went wrong: "))
	assert.Equal(t, 200, len([]rune(strings.TrimPrefix(msg, "❌ Something went wrong: "))))
}
