package service

import (
	"context"
	"errors"
	"time"

	"neurocopilot/cmd/conversation-service/internal/biz"
	"neurocopilot/cmd/conversation-service/internal/domain"

	"github.com/google/wire"
)

// ErrAllAccountsLimited 所有账号都在限流冷却中
var ErrAllAccountsLimited = errors.New("all accounts rate limited")

// ProviderSet 服务层提供者集合
var ProviderSet = wire.NewSet(NewCopilotService)

// CopilotService 对外服务门面
type CopilotService struct {
	chatUc *biz.ChatUsecase
	pool   *biz.AccountPool
}

// NewCopilotService 创建服务
func NewCopilotService(chatUc *biz.ChatUsecase, pool *biz.AccountPool) *CopilotService {
	return &CopilotService{
		chatUc: chatUc,
		pool:   pool,
	}
}

// SendTurn 处理一轮对话
func (s *CopilotService) SendTurn(ctx context.Context, subject int64, text string, forceSearch bool) (*biz.TurnReply, error) {
	return s.chatUc.HandleTurn(ctx, &biz.TurnRequest{
		Subject:     subject,
		Text:        text,
		ForceSearch: forceSearch,
	})
}

// Stats 上下文统计
func (s *CopilotService) Stats(ctx context.Context, subject int64) (*domain.ContextStats, error) {
	return s.chatUc.ContextStats(ctx, subject)
}

// GetMemory 长期记忆
func (s *CopilotService) GetMemory(ctx context.Context, subject int64) (*domain.Memory, error) {
	return s.chatUc.GetMemory(ctx, subject)
}

// AddMemory 手动添加记忆
func (s *CopilotService) AddMemory(ctx context.Context, subject int64, kind, text string) (bool, error) {
	k, ok := domain.ParseMemoryKind(kind)
	if !ok {
		return false, domain.ErrInvalidMemoryKind
	}
	return s.chatUc.AddMemory(ctx, subject, k, text)
}

// ClearMemory 清空记忆
func (s *CopilotService) ClearMemory(ctx context.Context, subject int64) error {
	return s.chatUc.ClearMemory(ctx, subject)
}

// SetInsights 设置用户背景
func (s *CopilotService) SetInsights(ctx context.Context, subject int64, insights string) error {
	return s.chatUc.SetInsights(ctx, subject, insights)
}

// ClearHistory 清空对话历史
func (s *CopilotService) ClearHistory(ctx context.Context, subject int64) error {
	return s.chatUc.ClearHistory(ctx, subject)
}

// LastSources 最近一次回答的引用
func (s *CopilotService) LastSources(ctx context.Context, subject int64) ([]domain.Citation, error) {
	return s.chatUc.LastSources(ctx, subject)
}

// Summaries 压缩审计记录
func (s *CopilotService) Summaries(ctx context.Context, subject int64) ([]*domain.SummaryRecord, error) {
	return s.chatUc.Summaries(ctx, subject)
}

// Compress 立即检查阈值并按需压缩
func (s *CopilotService) Compress(ctx context.Context, subject int64) (*domain.CompressionResult, error) {
	return s.chatUc.Compress(ctx, subject)
}

// Export 导出
func (s *CopilotService) Export(ctx context.Context, subject int64) (*domain.MemoryDump, error) {
	return s.chatUc.Export(ctx, subject)
}

// Import 导入
func (s *CopilotService) Import(ctx context.Context, subject int64, dump *domain.MemoryDump) (*biz.ImportResult, error) {
	return s.chatUc.Import(ctx, subject, dump)
}

// AccountStatus 账号可用性
func (s *CopilotService) AccountStatus(ctx context.Context) ([]*domain.AccountStatus, error) {
	return s.pool.Status(ctx)
}

// InitAccounts 替换账号池
func (s *CopilotService) InitAccounts(ctx context.Context, accounts []*domain.Account) error {
	return s.pool.Init(ctx, accounts)
}

// MarkAccount 手动标记账号不可用
func (s *CopilotService) MarkAccount(ctx context.Context, identity string, d time.Duration) error {
	return s.pool.MarkUnavailable(ctx, identity, d)
}

// CheckAccounts 全部账号限流时返回降级错误，池为空时返回 ErrNoAccounts
func (s *CopilotService) CheckAccounts(ctx context.Context) error {
	status, err := s.pool.Status(ctx)
	if err != nil {
		return err
	}
	if len(status) == 0 {
		return domain.ErrNoAccounts
	}
	for _, st := range status {
		if st.Available {
			return nil
		}
	}
	return ErrAllAccountsLimited
}
