package biz

import (
	"context"
	"errors"

	"neurocopilot/cmd/conversation-service/internal/domain"

	"go.uber.org/zap"
)

// Generator 模型客户端，在单个账号上完成有界重试
type Generator interface {
	Generate(ctx context.Context, account *domain.Account, messages []*domain.Message, systemPrompt string, opts domain.GenerateOptions) (*domain.Generation, error)
}

// RotationConfig 账号轮换配置
type RotationConfig struct {
	// MaxAccounts 单次请求最多尝试的账号数，0 表示账号池大小
	MaxAccounts int `mapstructure:"max_accounts"`
}

// Rotator 在账号池上组合重试：客户端先在当前账号内重试，
// 配额耗尽时标记账号并换下一个，凭证失败时直接换下一个。
type Rotator struct {
	pool      *AccountPool
	generator Generator
	config    *RotationConfig
	logger    *zap.Logger
}

// NewRotator 创建账号轮换器
func NewRotator(pool *AccountPool, generator Generator, config *RotationConfig, logger *zap.Logger) *Rotator {
	return &Rotator{
		pool:      pool,
		generator: generator,
		config:    config,
		logger:    logger.With(zap.String("module", "rotator")),
	}
}

// Generate 依次尝试不同账号直到成功，返回结果和最终使用的账号
func (r *Rotator) Generate(ctx context.Context, messages []*domain.Message, systemPrompt string, opts domain.GenerateOptions) (*domain.Generation, *domain.Account, error) {
	size, err := r.pool.Size(ctx)
	if err != nil {
		return nil, nil, err
	}
	if size == 0 {
		return nil, nil, domain.ErrNoAccounts
	}
	limit := size
	if r.config.MaxAccounts > 0 && r.config.MaxAccounts < size {
		limit = r.config.MaxAccounts
	}

	tried := make(map[string]struct{}, limit)
	var lastErr error
	for len(tried) < limit {
		account, err := r.pool.NextAccount(ctx)
		if err != nil {
			return nil, nil, err
		}
		if account == nil {
			return nil, nil, domain.ErrNoAccounts
		}
		if _, seen := tried[account.Identity]; seen {
			// 全部受限时账号池反复返回同一个最早恢复的账号
			break
		}
		tried[account.Identity] = struct{}{}

		gen, err := r.generator.Generate(ctx, account, messages, systemPrompt, opts)
		if err == nil {
			return gen, account, nil
		}
		lastErr = err

		var limited *domain.RateLimited
		switch {
		case errors.As(err, &limited):
			if markErr := r.pool.MarkUnavailable(ctx, account.Identity, 0); markErr != nil {
				r.logger.Warn("failed to mark account unavailable",
					zap.String("identity", account.Identity),
					zap.Error(markErr),
				)
			}
			r.logger.Info("account rate limited, rotating",
				zap.String("identity", account.Identity),
				zap.Int("attempts", limited.Attempts),
			)
		case domain.IsCredentialError(err):
			r.logger.Warn("account credential rejected, rotating",
				zap.String("identity", account.Identity),
				zap.Error(err),
			)
		default:
			return nil, account, err
		}
	}
	return nil, nil, lastErr
}
