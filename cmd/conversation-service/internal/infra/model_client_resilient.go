package infra

import (
	"context"
	"errors"
	"time"

	"neurocopilot/cmd/conversation-service/internal/domain"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Name             string        `mapstructure:"name"`
	MaxRequests      uint32        `mapstructure:"max_requests"`      // 半开状态允许的最大请求数
	Interval         time.Duration `mapstructure:"interval"`          // 统计窗口
	Timeout          time.Duration `mapstructure:"timeout"`           // 熔断后恢复时间
	FailureThreshold float64       `mapstructure:"failure_threshold"` // 失败率阈值（0.0-1.0）
	MinRequests      uint32        `mapstructure:"min_requests"`
}

// SetDefaults 填充默认值
func (c *CircuitBreakerConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "model-upstream"
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = 3
	}
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 0.5
	}
	if c.MinRequests == 0 {
		c.MinRequests = 5
	}
}

// ResilientModelClient 在模型客户端外加熔断器。
// 只有上游临时错误计入失败，配额和凭证问题属于单个账号，不影响熔断。
type ResilientModelClient struct {
	base    *ModelClient
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewResilientModelClient 创建带熔断的模型客户端
func NewResilientModelClient(base *ModelClient, config *CircuitBreakerConfig, logger *zap.Logger) *ResilientModelClient {
	config.SetDefaults()
	log := logger.With(zap.String("module", "resilient-model-client"))

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= config.FailureThreshold {
				log.Warn("circuit breaker tripping",
					zap.Uint32("requests", counts.Requests),
					zap.Uint32("failures", counts.TotalFailures),
					zap.Float64("ratio", ratio),
				)
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsTransient(err)
		},
	})

	return &ResilientModelClient{base: base, breaker: breaker, logger: log}
}

// Generate 通过熔断器调用模型；熔断打开时返回上游临时错误
func (c *ResilientModelClient) Generate(ctx context.Context, account *domain.Account, messages []*domain.Message, systemPrompt string, opts domain.GenerateOptions) (*domain.Generation, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.base.Generate(ctx, account, messages, systemPrompt, opts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("circuit breaker rejected request", zap.Error(err))
			return nil, &domain.TransientUpstreamError{Err: err}
		}
		return nil, err
	}
	return result.(*domain.Generation), nil
}

// State 熔断器状态
func (c *ResilientModelClient) State() gobreaker.State {
	return c.breaker.State()
}
