package data

import (
	"context"

	"neurocopilot/cmd/conversation-service/internal/domain"
	"neurocopilot/pkg/cache"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProviderSet 数据层提供者集合
var ProviderSet = wire.NewSet(
	NewDB,
	NewRedis,
	NewStore,
	NewAccountState,
	wire.Bind(new(domain.ConversationStore), new(*Store)),
	wire.Bind(new(domain.AccountStateStore), new(*AccountState)),
)

// NewRedis 创建 Redis 客户端
func NewRedis(c *cache.RedisConfig, logger *zap.Logger) (*redis.Client, func(), error) {
	client, err := cache.NewRedisClient(context.Background(), c)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("redis connected", zap.String("addr", c.Addr), zap.Int("db", c.DB))

	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	return client, cleanup, nil
}
