package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"neurocopilot/cmd/conversation-service/internal/domain"
	"neurocopilot/cmd/conversation-service/internal/metrics"

	"go.uber.org/zap"
)

// DefaultRateLimitCooldown 默认限流冷却时间
const DefaultRateLimitCooldown = 60 * time.Second

// AccountPoolConfig 账号池配置
type AccountPoolConfig struct {
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
}

// AccountPool 轮询选择账号，感知限流状态；游标和限流状态都在共享存储中
type AccountPool struct {
	state  domain.AccountStateStore
	config *AccountPoolConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewAccountPool 创建账号池
func NewAccountPool(state domain.AccountStateStore, config *AccountPoolConfig, logger *zap.Logger) *AccountPool {
	if config.RateLimitCooldown <= 0 {
		config.RateLimitCooldown = DefaultRateLimitCooldown
	}
	return &AccountPool{
		state:  state,
		config: config,
		now:    time.Now,
		logger: logger.With(zap.String("module", "account-pool")),
	}
}

// NextAccount 从游标开始环形扫描，返回第一个可用账号并推进游标。
// 全部不可用时返回最早恢复的账号，游标不动。池为空时返回 nil。
func (p *AccountPool) NextAccount(ctx context.Context) (*domain.Account, error) {
	selection, err := p.state.SelectAccount(ctx, p.now())
	if err != nil {
		return nil, err
	}
	account := selection.Account

	switch {
	case account == nil:
		metrics.AccountSelectionsTotal.WithLabelValues(metrics.SelectionEmpty).Inc()
		p.logger.Warn("account pool is empty")
	case selection.Degraded:
		metrics.AccountSelectionsTotal.WithLabelValues(metrics.SelectionDegraded).Inc()
		p.logger.Warn("all accounts rate limited, using soonest available", zap.String("identity", account.Identity))
	default:
		metrics.AccountSelectionsTotal.WithLabelValues(metrics.SelectionAvailable).Inc()
	}
	return account, nil
}

// MarkUnavailable 标记账号在 d 时间内不可用，d<=0 时使用默认冷却时间
func (p *AccountPool) MarkUnavailable(ctx context.Context, identity string, d time.Duration) error {
	if d <= 0 {
		d = p.config.RateLimitCooldown
	}
	until := p.now().Add(d)
	ttl := time.Duration((d+time.Second-1)/time.Second) * time.Second

	if err := p.state.MarkRateLimited(ctx, identity, until, ttl); err != nil {
		return err
	}
	metrics.AccountRateLimitMarks.Inc()
	p.logger.Info("account marked unavailable",
		zap.String("identity", identity),
		zap.Time("until", until),
	)
	return nil
}

// Init 用给定账号集合替换账号池
func (p *AccountPool) Init(ctx context.Context, accounts []*domain.Account) error {
	seen := make(map[string]struct{}, len(accounts))
	cleaned := make([]*domain.Account, 0, len(accounts))
	for i, a := range accounts {
		identity := strings.TrimSpace(a.Identity)
		if identity == "" || a.Credential == "" {
			return fmt.Errorf("%w: account %d: identity and credential are required", domain.ErrInvalidAccount, i)
		}
		if _, dup := seen[identity]; dup {
			return fmt.Errorf("%w: account %d: duplicate identity %s", domain.ErrInvalidAccount, i, identity)
		}
		seen[identity] = struct{}{}
		cleaned = append(cleaned, &domain.Account{
			Identity:       identity,
			Credential:     a.Credential,
			ProjectContext: a.ProjectContext,
		})
	}

	if err := p.state.SaveAccounts(ctx, cleaned); err != nil {
		return err
	}
	p.logger.Info("account pool initialized", zap.Int("accounts", len(cleaned)))
	return nil
}

// Size 账号数量
func (p *AccountPool) Size(ctx context.Context) (int, error) {
	accounts, err := p.state.LoadAccounts(ctx)
	if err != nil {
		return 0, err
	}
	return len(accounts), nil
}

// Status 各账号可用性快照
func (p *AccountPool) Status(ctx context.Context) ([]*domain.AccountStatus, error) {
	accounts, err := p.state.LoadAccounts(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.Identity
	}
	until, err := p.state.RateLimitedUntil(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := p.now()
	status := make([]*domain.AccountStatus, len(accounts))
	for i, a := range accounts {
		u, limited := until[a.Identity]
		status[i] = &domain.AccountStatus{
			Identity:       a.Identity,
			ProjectContext: a.ProjectContext,
			Available:      !limited || !u.After(now),
		}
		if limited {
			status[i].UnavailableUntil = u
		}
	}
	return status, nil
}
