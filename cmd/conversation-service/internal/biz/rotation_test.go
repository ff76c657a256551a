package biz

import (
	"context"
	"errors"
	"testing"

	"neurocopilot/cmd/conversation-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func failFor(identities map[string]error) *MockGenerator {
	return &MockGenerator{
		GenerateFunc: func(_ context.Context, account *domain.Account, _ []*domain.Message, _ string, _ domain.GenerateOptions) (*domain.Generation, error) {
			if err, ok := identities[account.Identity]; ok {
				return nil, err
			}
			return &domain.Generation{Text: "from " + account.Identity}, nil
		},
	}
}

func TestRotator_RateLimitedMarksAndRotates(t *testing.T) {
	ctx := context.Background()
	gen := failFor(map[string]error{"a": &domain.RateLimited{Identity: "a", Attempts: 3}})
	pool, rotator := setupTestRotator(t, gen, "a", "b", "c")

	result, account, err := rotator.Generate(ctx, nil, "", domain.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "b", account.Identity)
	assert.Equal(t, "from b", result.Text)
	assert.Equal(t, []string{"a", "b"}, gen.Identities())

	status, err := pool.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status[0].Available)
	assert.True(t, status[1].Available)
}

func TestRotator_CredentialErrorRotatesWithoutMarking(t *testing.T) {
	ctx := context.Background()
	gen := failFor(map[string]error{"a": &domain.CredentialError{Identity: "a", Err: errors.New("invalid_grant")}})
	pool, rotator := setupTestRotator(t, gen, "a", "b")

	_, account, err := rotator.Generate(ctx, nil, "", domain.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "b", account.Identity)

	status, err := pool.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status[0].Available)
}

func TestRotator_AllRateLimited(t *testing.T) {
	limited := func(id string) error { return &domain.RateLimited{Identity: id, Attempts: 3} }
	gen := failFor(map[string]error{"a": limited("a"), "b": limited("b"), "c": limited("c")})
	_, rotator := setupTestRotator(t, gen, "a", "b", "c")

	_, _, err := rotator.Generate(context.Background(), nil, "", domain.GenerateOptions{})
	assert.True(t, domain.IsRateLimited(err))
	assert.Equal(t, []string{"a", "b", "c"}, gen.Identities())
}

func TestRotator_TransientErrorStops(t *testing.T) {
	gen := failFor(map[string]error{"a": &domain.TransientUpstreamError{Status: 502, Err: errors.New("bad gateway")}})
	_, rotator := setupTestRotator(t, gen, "a", "b")

	_, _, err := rotator.Generate(context.Background(), nil, "", domain.GenerateOptions{})
	assert.True(t, domain.IsTransient(err))
	assert.Equal(t, []string{"a"}, gen.Identities())
}

func TestRotator_MaxAccounts(t *testing.T) {
	limited := func(id string) error { return &domain.RateLimited{Identity: id, Attempts: 3} }
	gen := failFor(map[string]error{"a": limited("a"), "b": limited("b")})
	_, pool := setupTestPool(t, "a", "b", "c")
	rotator := NewRotator(pool, gen, &RotationConfig{MaxAccounts: 2}, zap.NewNop())

	_, _, err := rotator.Generate(context.Background(), nil, "", domain.GenerateOptions{})
	assert.True(t, domain.IsRateLimited(err))
	assert.Equal(t, []string{"a", "b"}, gen.Identities())
}

func TestRotator_EmptyPool(t *testing.T) {
	gen := &MockGenerator{}
	_, rotator := setupTestRotator(t, gen)

	_, _, err := rotator.Generate(context.Background(), nil, "", domain.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrNoAccounts)
	assert.Empty(t, gen.Calls())
}
