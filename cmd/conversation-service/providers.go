package main

import (
	"net/http"

	"neurocopilot/cmd/conversation-service/internal/biz"
	"neurocopilot/cmd/conversation-service/internal/conf"
	"neurocopilot/cmd/conversation-service/internal/data"
	"neurocopilot/cmd/conversation-service/internal/infra"
	"neurocopilot/cmd/conversation-service/internal/infra/kafka"
	"neurocopilot/cmd/conversation-service/internal/server"
	"neurocopilot/pkg/cache"
	"neurocopilot/pkg/database"

	"github.com/google/wire"
	"go.uber.org/zap"
)

// App 应用组件
type App struct {
	HTTP *server.HTTPServer
}

var configSet = wire.NewSet(
	httpConfig,
	databaseConfig,
	redisConfig,
	kafkaConfig,
	oauthConfig,
	modelConfig,
	breakerConfig,
	poolConfig,
	rotationConfig,
	compressionConfig,
	chatConfig,
	promptConfig,
	storeConfig,
)

var infraSet = wire.NewSet(
	newUpstreamHTTPClient,
	infra.NewTokenExchanger,
	infra.NewModelClient,
	newGenerator,
	newEventPublisher,
)

func httpConfig(c *conf.Config) *server.HTTPConfig { return &c.Server }
func databaseConfig(c *conf.Config) *database.Config { return &c.Database }
func redisConfig(c *conf.Config) *cache.RedisConfig { return &c.Redis }
func kafkaConfig(c *conf.Config) *kafka.ProducerConfig { return &c.Kafka }
func oauthConfig(c *conf.Config) *infra.OAuthConfig { return &c.OAuth }
func modelConfig(c *conf.Config) *infra.ModelClientConfig { return &c.Model }
func breakerConfig(c *conf.Config) *infra.CircuitBreakerConfig { return &c.Breaker }
func poolConfig(c *conf.Config) *biz.AccountPoolConfig { return &c.Accounts }
func rotationConfig(c *conf.Config) *biz.RotationConfig { return &c.Rotation }
func compressionConfig(c *conf.Config) *biz.CompressionConfig { return &c.Compression }
func chatConfig(c *conf.Config) *biz.ChatConfig { return &c.Chat }
func promptConfig(c *conf.Config) *biz.PromptConfig { return &c.Prompt }

func storeConfig(c *conf.Config) *data.StoreConfig {
	return &data.StoreConfig{MaxHistoryMessages: c.Chat.MaxHistoryMessages}
}

// newUpstreamHTTPClient 令牌交换和生成请求共用
func newUpstreamHTTPClient(c *infra.ModelClientConfig) *http.Client {
	return infra.NewHTTPClient(c)
}

// newGenerator 按配置决定是否套一层熔断
func newGenerator(base *infra.ModelClient, c *infra.CircuitBreakerConfig, logger *zap.Logger) biz.Generator {
	if !c.Enabled {
		return base
	}
	return infra.NewResilientModelClient(base, c, logger)
}

// newEventPublisher 未启用 Kafka 时返回 nil 接口，用例据此跳过发布
func newEventPublisher(c *kafka.ProducerConfig, logger *zap.Logger) (biz.EventPublisher, func(), error) {
	if !c.Enabled {
		logger.Info("kafka events disabled")
		return nil, func() {}, nil
	}
	producer, err := kafka.NewEventProducer(c, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := producer.Close(); err != nil {
			logger.Warn("failed to close kafka producer", zap.Error(err))
		}
	}
	return producer, cleanup, nil
}
