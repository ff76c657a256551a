package conf

import (
	"errors"
	"fmt"
	"os"

	"neurocopilot/cmd/conversation-service/internal/biz"
	"neurocopilot/cmd/conversation-service/internal/infra"
	"neurocopilot/cmd/conversation-service/internal/infra/kafka"
	"neurocopilot/cmd/conversation-service/internal/server"
	"neurocopilot/pkg/cache"
	"neurocopilot/pkg/config"
	"neurocopilot/pkg/database"
	"neurocopilot/pkg/observability"

	"go.uber.org/zap"
)

// ServiceName 服务名，也是 Nacos 的默认 data id 前缀
const ServiceName = "conversation-service"

// EnvPrefix 环境变量前缀，如 COPILOT_SERVER_ADDR 覆盖 server.addr
const EnvPrefix = "COPILOT"

// Config 服务配置
type Config struct {
	Server      server.HTTPConfig           `mapstructure:"server"`
	Metrics     MetricsConfig               `mapstructure:"metrics"`
	Log         LogConfig                   `mapstructure:"log"`
	Tracing     observability.TracingConfig `mapstructure:"tracing"`
	Database    database.Config             `mapstructure:"database"`
	Redis       cache.RedisConfig           `mapstructure:"redis"`
	Kafka       kafka.ProducerConfig        `mapstructure:"kafka"`
	OAuth       infra.OAuthConfig           `mapstructure:"oauth"`
	Model       infra.ModelClientConfig     `mapstructure:"model"`
	Breaker     infra.CircuitBreakerConfig  `mapstructure:"breaker"`
	Accounts    biz.AccountPoolConfig       `mapstructure:"accounts"`
	Rotation    biz.RotationConfig          `mapstructure:"rotation"`
	Compression biz.CompressionConfig       `mapstructure:"compression"`
	Chat        biz.ChatConfig              `mapstructure:"chat"`
	Prompt      biz.PromptConfig            `mapstructure:"prompt"`
}

// MetricsConfig Prometheus 暴露地址
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load 读取配置，应用环境变量覆盖和默认值并校验
func Load(path string, logger *zap.Logger) (*Config, *config.Manager, error) {
	manager := config.NewManager(EnvPrefix, logger)
	if err := manager.Load(path, ServiceName); err != nil {
		return nil, nil, err
	}

	var c Config
	if err := manager.Unmarshal(&c); err != nil {
		_ = manager.Close()
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	c.applyEnv()
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		_ = manager.Close()
		return nil, nil, err
	}
	return &c, manager, nil
}

// applyEnv 密钥类配置只从环境变量读取时使用
func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"GOOGLE_CLIENT_ID":     &c.OAuth.ClientID,
		"GOOGLE_CLIENT_SECRET": &c.OAuth.ClientSecret,
		"DATABASE_DSN":         &c.Database.Source,
		"REDIS_PASSWORD":       &c.Redis.Password,
		"ADMIN_TOKEN":          &c.Server.AdminToken,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// SetDefaults 填充默认值
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = ServiceName
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "copilot"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	c.Model.SetDefaults()
	c.Breaker.SetDefaults()
	c.Compression.SetDefaults()
	if c.Accounts.RateLimitCooldown <= 0 {
		c.Accounts.RateLimitCooldown = biz.DefaultRateLimitCooldown
	}
	if c.Chat.MaxHistoryMessages <= 0 {
		c.Chat.MaxHistoryMessages = biz.DefaultImportHistoryLimit
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if err := c.Compression.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Model.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("model.max_attempts must be at least 1, got %d", c.Model.MaxAttempts))
	}
	if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
		errs = append(errs, errors.New("oauth client id and secret are required (GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET)"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.Rotation.MaxAccounts < 0 {
		errs = append(errs, errors.New("rotation.max_accounts must not be negative"))
	}
	return errors.Join(errs...)
}
