package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), &RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = NewRedisClient(context.Background(), &RedisConfig{Addr: mr.Addr()})
	assert.Error(t, err)
}

func TestKeyspace(t *testing.T) {
	assert.Equal(t, "copilot:cursor", Keyspace("copilot").Key("cursor"))
	assert.Equal(t, "cursor", Keyspace("").Key("cursor"))
}
