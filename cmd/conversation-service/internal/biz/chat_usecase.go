package biz

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"neurocopilot/cmd/conversation-service/internal/domain"
	"neurocopilot/cmd/conversation-service/internal/metrics"

	"go.uber.org/zap"
)

// DefaultImportHistoryLimit 导入时保留的最新消息数
const DefaultImportHistoryLimit = 10000

// ChatConfig 对话用例配置
type ChatConfig struct {
	MaxHistoryMessages int `mapstructure:"max_history_messages"`
}

// TurnRequest 一轮对话输入
type TurnRequest struct {
	Subject     int64
	Text        string
	ForceSearch bool
}

// TurnReply 一轮对话输出
type TurnReply struct {
	Text         string                    `json:"text"`
	Citations    []domain.Citation         `json:"citations,omitempty"`
	Account      string                    `json:"account"`
	MemoryStored int                       `json:"memory_stored"`
	Compression  *domain.CompressionResult `json:"compression,omitempty"`
	// CompressionError 回复已成功，压缩失败只在这里报告
	CompressionError string `json:"compression_error,omitempty"`
	Note             string `json:"note,omitempty"`
}

// ImportResult 导入统计
type ImportResult struct {
	Messages    int  `json:"messages"`
	MemoryItems int  `json:"memory_items"`
	Insights    bool `json:"insights"`
}

// ChatUsecase 对话用例：一轮对话、记忆命令、统计、导入导出
type ChatUsecase struct {
	store      domain.ConversationStore
	prompts    *PromptBuilder
	rotator    *Rotator
	compressor *Compressor
	events     EventPublisher
	config     *ChatConfig
	budget     *CompressionConfig
	clock      *messageClock
	logger     *zap.Logger
}

// NewChatUsecase 创建对话用例
func NewChatUsecase(
	store domain.ConversationStore,
	prompts *PromptBuilder,
	rotator *Rotator,
	compressor *Compressor,
	events EventPublisher,
	config *ChatConfig,
	budget *CompressionConfig,
	logger *zap.Logger,
) *ChatUsecase {
	if config.MaxHistoryMessages <= 0 {
		config.MaxHistoryMessages = DefaultImportHistoryLimit
	}
	budget.SetDefaults()
	return &ChatUsecase{
		store:      store,
		prompts:    prompts,
		rotator:    rotator,
		compressor: compressor,
		events:     events,
		config:     config,
		budget:     budget,
		clock:      newMessageClock(time.Now),
		logger:     logger.With(zap.String("module", "chat-usecase")),
	}
}

// HandleTurn 处理一轮对话：记录用户消息，生成回复，提取内联记忆，最后检查压缩
func (uc *ChatUsecase) HandleTurn(ctx context.Context, req *TurnRequest) (*TurnReply, error) {
	start := time.Now()
	reply, err := uc.handleTurn(ctx, req)
	metrics.TurnDuration.Observe(time.Since(start).Seconds())

	outcome := metrics.OutcomeOK
	switch Categorize(err) {
	case "":
	case CategoryRateLimit:
		outcome = metrics.OutcomeRateLimited
	case CategoryTokenExpired:
		outcome = metrics.OutcomeCredential
	case CategoryNetwork, CategoryTimeout:
		outcome = metrics.OutcomeTransient
	default:
		outcome = metrics.OutcomeError
	}
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	return reply, err
}

func (uc *ChatUsecase) handleTurn(ctx context.Context, req *TurnRequest) (*TurnReply, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}

	if err := uc.store.AppendMessage(ctx, req.Subject, domain.NewMessage(domain.RoleUser, text, uc.clock.Next())); err != nil {
		return nil, err
	}

	history, err := uc.store.ListMessages(ctx, req.Subject)
	if err != nil {
		return nil, err
	}
	systemPrompt, err := uc.systemPrompt(ctx, req.Subject)
	if err != nil {
		return nil, err
	}

	gen, account, err := uc.rotator.Generate(ctx, history, systemPrompt, domain.GenerateOptions{
		ForceExternalLookup: req.ForceSearch,
		RequestTag:          "bot",
	})
	if err != nil {
		uc.logger.Warn("generation failed", zap.Int64("subject", req.Subject), zap.Error(err))
		return nil, err
	}

	clean, items := ExtractInlineMemory(gen.Text)
	stored := 0
	for _, item := range items {
		added, err := uc.store.AddMemoryItem(ctx, req.Subject, item.Kind, item.Text)
		if err != nil {
			return nil, err
		}
		if added {
			stored++
			metrics.MemoryItemsStored.WithLabelValues(metrics.SourceInline, string(item.Kind)).Inc()
		}
	}

	if len(gen.Citations) > 0 {
		if err := uc.store.SaveLastSources(ctx, req.Subject, gen.Citations); err != nil {
			return nil, err
		}
	}

	if err := uc.store.AppendMessage(ctx, req.Subject, domain.NewMessage(domain.RoleModel, clean, uc.clock.Next())); err != nil {
		return nil, err
	}

	reply := &TurnReply{
		Text:         clean,
		Citations:    gen.Citations,
		Account:      account.Identity,
		MemoryStored: stored,
	}

	compression, err := uc.compressor.MaybeCompress(ctx, req.Subject)
	if err != nil {
		uc.logger.Error("compression after turn failed", zap.Int64("subject", req.Subject), zap.Error(err))
		reply.CompressionError = err.Error()
	} else {
		reply.Compression = compression
		reply.Note = CompressionNote(compression)
	}

	uc.publishTurn(ctx, req.Subject, reply)
	return reply, nil
}

// CompressionNote 附加在回复后的压缩提示，未压缩时为空
func CompressionNote(result *domain.CompressionResult) string {
	if result == nil || !result.Compressed {
		return ""
	}
	freedK := int(math.Round(float64(result.TokensFreed) / 1000))
	return fmt.Sprintf("(context compressed, ~%dK tokens freed, %d facts saved)", freedK, result.FactsExtracted)
}

func (uc *ChatUsecase) systemPrompt(ctx context.Context, subject int64) (string, error) {
	settings, err := uc.store.GetSettings(ctx, subject)
	if err != nil {
		return "", err
	}
	mem, err := uc.store.ListMemoryItems(ctx, subject)
	if err != nil {
		return "", err
	}
	return uc.prompts.Build(settings.Insights, mem), nil
}

func (uc *ChatUsecase) publishTurn(ctx context.Context, subject int64, reply *TurnReply) {
	if uc.events == nil {
		return
	}
	event := &domain.TurnEvent{
		EventType:  domain.EventTurnCompleted,
		Subject:    subject,
		Identity:   reply.Account,
		Citations:  len(reply.Citations),
		Compressed: reply.Compression != nil && reply.Compression.Compressed,
		OccurredAt: time.Now(),
	}
	if err := uc.events.Publish(ctx, fmt.Sprint(subject), event); err != nil {
		uc.logger.Warn("failed to publish turn event", zap.Error(err))
	}
}

// AddMemory 手动添加记忆，已存在时返回 false
func (uc *ChatUsecase) AddMemory(ctx context.Context, subject int64, kind domain.MemoryKind, text string) (bool, error) {
	if _, ok := domain.ParseMemoryKind(string(kind)); !ok {
		return false, domain.ErrInvalidMemoryKind
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false, domain.ErrEmptyMemoryText
	}
	added, err := uc.store.AddMemoryItem(ctx, subject, kind, text)
	if err != nil {
		return false, err
	}
	if added {
		metrics.MemoryItemsStored.WithLabelValues(metrics.SourceManual, string(kind)).Inc()
	}
	return added, nil
}

// AddFact 添加事实
func (uc *ChatUsecase) AddFact(ctx context.Context, subject int64, text string) (bool, error) {
	return uc.AddMemory(ctx, subject, domain.MemoryFact, text)
}

// AddPreference 添加偏好
func (uc *ChatUsecase) AddPreference(ctx context.Context, subject int64, text string) (bool, error) {
	return uc.AddMemory(ctx, subject, domain.MemoryPreference, text)
}

// AddGoal 添加目标
func (uc *ChatUsecase) AddGoal(ctx context.Context, subject int64, text string) (bool, error) {
	return uc.AddMemory(ctx, subject, domain.MemoryGoal, text)
}

func (uc *ChatUsecase) GetMemory(ctx context.Context, subject int64) (*domain.Memory, error) {
	return uc.store.ListMemoryItems(ctx, subject)
}

func (uc *ChatUsecase) ClearMemory(ctx context.Context, subject int64) error {
	return uc.store.ClearMemoryItems(ctx, subject)
}

func (uc *ChatUsecase) GetSettings(ctx context.Context, subject int64) (*domain.Settings, error) {
	return uc.store.GetSettings(ctx, subject)
}

// SetInsights 覆盖用户背景
func (uc *ChatUsecase) SetInsights(ctx context.Context, subject int64, insights string) error {
	return uc.store.UpsertSettings(ctx, subject, strings.TrimSpace(insights))
}

// ClearHistory 清空消息和压缩摘要
func (uc *ChatUsecase) ClearHistory(ctx context.Context, subject int64) error {
	if err := uc.store.ClearMessages(ctx, subject); err != nil {
		return err
	}
	return uc.store.ClearSummaries(ctx, subject)
}

func (uc *ChatUsecase) LastSources(ctx context.Context, subject int64) ([]domain.Citation, error) {
	return uc.store.GetLastSources(ctx, subject)
}

func (uc *ChatUsecase) Summaries(ctx context.Context, subject int64) ([]*domain.SummaryRecord, error) {
	return uc.store.ListSummaries(ctx, subject)
}

// Compress 立即执行一次阈值检查
func (uc *ChatUsecase) Compress(ctx context.Context, subject int64) (*domain.CompressionResult, error) {
	return uc.compressor.MaybeCompress(ctx, subject)
}

// ContextStats 上下文占用：Tokens = 历史 + 系统提示词
func (uc *ChatUsecase) ContextStats(ctx context.Context, subject int64) (*domain.ContextStats, error) {
	history, err := uc.store.ListMessages(ctx, subject)
	if err != nil {
		return nil, err
	}
	settings, err := uc.store.GetSettings(ctx, subject)
	if err != nil {
		return nil, err
	}
	mem, err := uc.store.ListMemoryItems(ctx, subject)
	if err != nil {
		return nil, err
	}
	summaries, err := uc.store.ListSummaries(ctx, subject)
	if err != nil {
		return nil, err
	}

	historyTokens := domain.EstimateMessages(history)
	systemTokens := domain.EstimateTokens(uc.prompts.Build(settings.Insights, mem))
	total := historyTokens + systemTokens
	percent := int(math.Round(float64(total) * 100 / float64(uc.budget.MaxContextTokens)))

	return &domain.ContextStats{
		Tokens:         total,
		Percent:        min(100, percent),
		HistoryTokens:  historyTokens,
		SystemTokens:   systemTokens,
		InsightsTokens: domain.EstimateTokens(settings.Insights),
		MessageCount:   len(history),
		SummaryCount:   len(summaries),
	}, nil
}

// Export 导出历史、背景和记忆
func (uc *ChatUsecase) Export(ctx context.Context, subject int64) (*domain.MemoryDump, error) {
	history, err := uc.store.ListMessages(ctx, subject)
	if err != nil {
		return nil, err
	}
	settings, err := uc.store.GetSettings(ctx, subject)
	if err != nil {
		return nil, err
	}
	mem, err := uc.store.ListMemoryItems(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &domain.MemoryDump{History: history, Insights: settings.Insights, Memory: mem}, nil
}

// Import 按快照恢复。各部分只在快照中存在时才覆盖，memory 为空对象时清空记忆。
func (uc *ChatUsecase) Import(ctx context.Context, subject int64, dump *domain.MemoryDump) (*ImportResult, error) {
	for i, m := range dump.History {
		if m == nil {
			return nil, fmt.Errorf("history[%d]: %w", i, domain.ErrNullMessage)
		}
		if !m.Role.Valid() {
			return nil, fmt.Errorf("history[%d]: %w", i, domain.ErrInvalidMessageRole)
		}
	}
	result := &ImportResult{}

	if len(dump.History) > 0 {
		if err := uc.store.ClearMessages(ctx, subject); err != nil {
			return nil, err
		}
		history := dump.History
		if len(history) > uc.config.MaxHistoryMessages {
			history = history[len(history)-uc.config.MaxHistoryMessages:]
		}
		for _, m := range history {
			if err := uc.store.AppendMessage(ctx, subject, domain.NewMessage(m.Role, m.Content, m.Timestamp)); err != nil {
				return result, err
			}
			result.Messages++
		}
	}

	if strings.TrimSpace(dump.Insights) != "" {
		if err := uc.store.UpsertSettings(ctx, subject, dump.Insights); err != nil {
			return result, err
		}
		result.Insights = true
	}

	if dump.Memory != nil {
		if err := uc.store.ClearMemoryItems(ctx, subject); err != nil {
			return result, err
		}
		for _, item := range dump.Memory.Items() {
			if strings.TrimSpace(item.Text) == "" {
				continue
			}
			added, err := uc.store.AddMemoryItem(ctx, subject, item.Kind, item.Text)
			if err != nil {
				return result, err
			}
			if added {
				result.MemoryItems++
				metrics.MemoryItemsStored.WithLabelValues(metrics.SourceImport, string(item.Kind)).Inc()
			}
		}
	}

	uc.logger.Info("memory imported",
		zap.Int64("subject", subject),
		zap.Int("messages", result.Messages),
		zap.Int("memory_items", result.MemoryItems),
		zap.Bool("insights", result.Insights),
	)
	return result, nil
}

// messageClock 毫秒时间戳，同一进程内严格递增
type messageClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newMessageClock(now func() time.Time) *messageClock {
	return &messageClock{now: now}
}

func (c *messageClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}
